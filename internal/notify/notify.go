// Package notify renders the chat replies sent to users.
package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/expense-bot/internal/domain"
	"github.com/dvloznov/expense-bot/internal/ledger"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// SummaryRows is how many expenses MonthlySummary lists.
const SummaryRows = 8

// Fixed replies.
const (
	GenericFailure  = "❌ No pude procesar tu mensaje. Intenta de nuevo."
	NotUnderstood   = "🤔 No entendí. Escribe /ayuda o envía una foto de tu comprobante.\n\n💡 Tip: Puedes escribir \"mercado wong 97 soles\" o \"50 uber\"."
	Listening       = "🎤 Escuchando tu mensaje..."
	VoiceFailed     = "❌ No pude entender el audio. Intenta de nuevo hablando más claro."
	Analyzing       = "⏳ Analizando tu comprobante..."
	Cancelled       = "👌 Listo, conservé el gasto anterior."
	BankUnavailable = "❌ Las notificaciones del banco solo están disponibles desde Telegram."
)

// Help is the command list.
const Help = `🤖 Tu asistente de gastos

📸 Envía una foto de tu factura o boleta y la registraré.

🎤 Envía un audio diciendo tu gasto (ej: "50 soles en uber")

⚡ Registro rápido:
• "50 uber" - Registra S/50 en Uber
• "120 wong" - Registra S/120 en Wong
• "100 cop rappi" - Registra $100 COP

📝 Comandos:
• /resumen - Últimos gastos
• /mes - Gastos del mes
• /categorias - Por categoría
• /borrar - Eliminar último gasto
• /moneda COP - Cambiar moneda
• /vincular - Conectar con el dashboard
• /banco - Conectar notificaciones del banco
• /ayuda - Este mensaje`

// EmptyKind selects an "no expenses" reply.
type EmptyKind int

const (
	EmptyMonth EmptyKind = iota
	EmptyDelete
	EmptyModify
)

// Empty renders the reply for a user with nothing to show or change.
func Empty(kind EmptyKind) string {
	switch kind {
	case EmptyDelete:
		return "📭 No tienes gastos para borrar."
	case EmptyModify:
		return "📭 No tienes gastos para modificar."
	default:
		return "📭 No tienes gastos este mes."
	}
}

// Amount renders an amount as symbol plus a Spanish-localized number with
// at most two decimals, e.g. "S/ 1.234,5".
func Amount(amount decimal.Decimal, cur domain.Currency) string {
	return cur.Symbol() + localNumber(amount)
}

func localNumber(amount decimal.Decimal) string {
	// Printers are not shared between goroutines.
	p := message.NewPrinter(language.Spanish)
	return p.Sprint(number.Decimal(amount.Round(2).InexactFloat64(), number.MaxFractionDigits(2)))
}

func expenseCard(title string, e domain.Expense) string {
	return fmt.Sprintf("%s\n\n💰 %s %s\n🏪 %s\n📁 %s\n📅 %s",
		title, Amount(e.Amount, e.Currency), e.Currency, e.Merchant, e.Category.Label(), e.Date.String())
}

// Success confirms a newly registered expense.
func Success(e domain.Expense) string {
	return expenseCard("✅ "+e.Category.Emoji()+" Gasto registrado", e)
}

// Replaced confirms that a duplicate replaced the previous expense.
func Replaced(e domain.Expense) string {
	return expenseCard("✅ "+e.Category.Emoji()+" Gasto actualizado", e)
}

// BankSuccess confirms an expense registered from a bank email.
func BankSuccess(e domain.Expense, bank string) string {
	if bank == "" {
		bank = "tu banco"
	}
	return expenseCard("📧 "+e.Category.Emoji()+" Gasto automático registrado", e) +
		"\n\n💳 Detectado desde tu email de " + bank
}

// Duplicate asks the user to confirm replacing an existing expense.
func Duplicate(c domain.Candidate) string {
	return fmt.Sprintf("⚠️ Gasto duplicado detectado\n\nYa tienes un gasto de %s en %s el %s.\n\nEscribe \"si\" para reemplazar el anterior.",
		Amount(c.Amount, c.Currency), c.Merchant, c.Date.String())
}

// Deleted confirms that an expense was removed.
func Deleted(e domain.Expense) string {
	return fmt.Sprintf("🗑️ Gasto eliminado\n\nSe borró: %s en %s (%s)",
		Amount(e.Amount, e.Currency), e.Merchant, e.Date.String())
}

// CurrencyChanged confirms a currency change of the given (pre-update)
// expense.
func CurrencyChanged(before domain.Expense, to domain.Currency) string {
	return fmt.Sprintf("💱 Moneda actualizada\n\n%s: %s %s → %s",
		before.Merchant, localNumber(before.Amount), before.Currency, to)
}

// Error reports a failure with a reason the user can act on.
func Error(reason string) string {
	return "❌ Error: " + reason
}

// Transcript echoes what was understood from a voice note.
func Transcript(text string) string {
	return fmt.Sprintf("📝 Entendí: \"%s\"\n\n⏳ Procesando...", text)
}

// MonthlySummary lists the first expenses of the month and the totals per
// currency.
func MonthlySummary(expenses []domain.Expense) string {
	if len(expenses) == 0 {
		return Empty(EmptyMonth)
	}

	var b strings.Builder
	b.WriteString("📅 Gastos del mes\n\n")
	for i, e := range expenses {
		if i == SummaryRows {
			break
		}
		fmt.Fprintf(&b, "%s %s - %s\n", e.Category.Emoji(), Amount(e.Amount, e.Currency), e.Merchant)
	}
	if extra := len(expenses) - SummaryRows; extra > 0 {
		fmt.Fprintf(&b, "… y %d más\n", extra)
	}

	for _, t := range ledger.CurrencyTotals(expenses) {
		fmt.Fprintf(&b, "\n💰 Total: %s %s", Amount(t.Total, t.Currency), t.Currency)
	}
	return b.String()
}

// CategoryBreakdown lists category totals. cur is the currency shown when all
// the expenses share one; pass "" for mixed currencies.
func CategoryBreakdown(totals []ledger.CategoryTotal, cur domain.Currency) string {
	if len(totals) == 0 {
		return Empty(EmptyMonth)
	}

	symbol := "$"
	if cur != "" {
		symbol = cur.Symbol()
	}

	var b strings.Builder
	b.WriteString("📊 Gastos por categoría\n")
	for _, t := range totals {
		fmt.Fprintf(&b, "\n%s %s: %s%s", t.Category.Emoji(), t.Category.Label(), symbol, localNumber(t.Total))
	}
	return b.String()
}

// LinkCode tells the user how to link the dashboard with code.
func LinkCode(code, dashboardURL string, ttl time.Duration) string {
	return fmt.Sprintf("🔗 Código de vinculación\n\nTu código es: %s\n\n1. Abre el dashboard:\n%s\n\n2. Ingresa este código\n3. ¡Listo! Podrás ver tus gastos\n\n⏰ El código expira en %d minutos.",
		code, dashboardURL, int(ttl.Minutes()))
}

// BankSetup explains how to forward bank notifications to address.
func BankSetup(address string) string {
	return "🏦 Conectar notificaciones del banco\n\n" +
		"Para registrar automáticamente tus gastos desde tu banco, configura las notificaciones por email:\n\n" +
		"1. Entra a la app de tu banco (Interbank, BCP, etc.)\n" +
		"2. Activa notificaciones por email\n" +
		"3. Usa este email:\n\n" +
		"📧 " + address + "\n\n" +
		"¡Listo! Cada vez que hagas un consumo con tu tarjeta, se registrará automáticamente aquí."
}
