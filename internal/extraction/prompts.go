package extraction

import (
	"fmt"
	"strings"

	"github.com/dvloznov/expense-bot/internal/domain"
)

// categoriesPrompt lists the category wire tags with a short hint each, in
// the same order the normalizer and formatter use.
func categoriesPrompt() string {
	var b strings.Builder
	b.WriteString("CATEGORÍAS:\n")
	for _, c := range domain.Categories {
		b.WriteString("- " + c.WireTag + ": " + c.Hint + "\n")
	}
	return b.String()
}

func categoryTags() string {
	tags := make([]string, len(domain.Categories))
	for i, c := range domain.Categories {
		tags[i] = c.WireTag
	}
	return strings.Join(tags, "|")
}

func currencyCodes() string {
	codes := make([]string, len(domain.Currencies))
	for i, c := range domain.Currencies {
		codes[i] = string(c)
	}
	return strings.Join(codes, "|")
}

func defaultCurrency(hint *domain.Currency) domain.Currency {
	if hint != nil {
		if c, ok := domain.ParseCurrency(string(*hint)); ok {
			return c
		}
	}
	return domain.DefaultCurrency
}

const jsonOnlyRules = "Responde SOLO JSON válido, sin bloques de código ni Markdown.\n"

func promptFor(d Domain, hint *domain.Currency) (string, error) {
	switch d {
	case DomainChatFreeform:
		return chatPrompt(hint), nil
	case DomainBankEmail:
		return bankEmailPrompt(hint), nil
	case DomainReceiptPhoto:
		return receiptPrompt(hint), nil
	default:
		return "", fmt.Errorf("promptFor: unknown domain %q", d)
	}
}

func chatPrompt(hint *domain.Currency) string {
	def := defaultCurrency(hint)

	return "Extrae información de gasto de texto en lenguaje natural. " + jsonOnlyRules +
		fmt.Sprintf(`{"amount": number, "currency": "%s", "category": "%s", "merchant": "string", "description": "string|null"}`,
			currencyCodes(), categoryTags()) + "\n\n" +
		"REGLAS:\n" +
		"- amount: el número del monto (sin símbolos). Si no hay monto claro, responde null\n" +
		"- currency: detecta de palabras como \"soles\", \"pesos\", \"dólares\", o códigos. Default: " + string(def) + "\n" +
		"- category: categoriza según el contexto\n" +
		"- merchant: nombre del comercio/servicio (capitalizado)\n" +
		"- description: texto adicional relevante o null\n\n" +
		categoriesPrompt() + "\n" +
		"Ejemplos:\n" +
		`"mercado wong 97 soles!" → {"amount": 97, "currency": "PEN", "category": "alimentacion", "merchant": "Wong", "description": null}` + "\n" +
		fmt.Sprintf(`"gasté 50 en uber" → {"amount": 50, "currency": "%s", "category": "transporte", "merchant": "Uber", "description": null}`, def) + "\n" +
		`"netflix 15 dólares" → {"amount": 15, "currency": "USD", "category": "entretenimiento", "merchant": "Netflix", "description": null}` + "\n" +
		`"almuerzo con María 35 soles" → {"amount": 35, "currency": "PEN", "category": "alimentacion", "merchant": "Almuerzo", "description": "con María"}` + "\n" +
		`"hola como estas" → null` + "\n"
}

func bankEmailPrompt(hint *domain.Currency) string {
	def := defaultCurrency(hint)

	return "Extrae información de una notificación de transacción bancaria. " + jsonOnlyRules +
		fmt.Sprintf(`{"amount": number, "currency": "%s", "merchant": "string", "category": "%s", "date": "YYYY-MM-DD", "cardLast4": "string|null"}`,
			currencyCodes(), categoryTags()) + "\n\n" +
		"REGLAS:\n" +
		"- amount: monto de la transacción (número positivo)\n" +
		"- currency: PEN para soles (S/), USD para dólares. Default: " + string(def) + "\n" +
		"- merchant: nombre del comercio (capitalizado, limpio, sin prefijos del procesador de pagos)\n" +
		"- category: categoriza según el comercio\n" +
		"- date: fecha de la transacción en formato YYYY-MM-DD, o null si no aparece\n" +
		"- cardLast4: últimos 4 dígitos de la tarjeta si aparecen, si no null\n\n" +
		categoriesPrompt() + "\n" +
		"Si no es una notificación de transacción válida, responde: null\n\n" +
		"Ejemplos:\n" +
		`- "Consumo aprobado por S/ 45.90 en WONG CENCOSUD..." → {"amount": 45.90, "currency": "PEN", "merchant": "Wong", ...}` + "\n" +
		`- "Pago con tu tarjeta ****1234 por S/ 25.00 en UBER*TRIP..." → {"amount": 25.00, "currency": "PEN", "merchant": "Uber", "cardLast4": "1234", ...}` + "\n"
}

func receiptPrompt(hint *domain.Currency) string {
	hintRule := ""
	if hint != nil {
		if c, ok := domain.ParseCurrency(string(*hint)); ok {
			hintRule = fmt.Sprintf("\n\nIMPORTANTE: Este usuario normalmente registra gastos en %s. "+
				"Si no hay evidencia clara de otra moneda, usa %s.", c, c)
		}
	}

	return "Extrae info de comprobantes de pago. " + jsonOnlyRules +
		fmt.Sprintf(`{"amount": number, "currency": "%s", "category": "%s", "merchant": "string", "description": "string|null", "date": "YYYY-MM-DD", "confidence": 0.0-1.0}`,
			currencyCodes(), categoryTags()) + "\n\n" +
		"REGLAS CRÍTICAS para detectar moneda:\n" +
		"1. Si menciona Bogotá, Colombia, NIT, Cámara de Comercio, Credibanco → SIEMPRE es COP\n" +
		"2. Si menciona Santiago, Chile, RUT, SII, boleta electrónica → CLP\n" +
		"3. Si menciona Lima, Perú, RUC, SUNAT, S/. → PEN\n" +
		"4. Si menciona México, RFC, SAT → MXN\n" +
		"5. Si el símbolo es $ sin más contexto y el monto es >1000, probablemente es COP o CLP (NO USD)\n" +
		"6. USD solo si dice explícitamente \"USD\", \"dollars\", o es un recibo de USA\n\n" +
		"Prioridad: Contexto geográfico > Símbolo de moneda" + hintRule + "\n\n" +
		categoriesPrompt() + "\n" +
		`Si no es un comprobante: {"error": "mensaje"}` + "\n"
}
