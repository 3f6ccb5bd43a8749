package scanning

import (
	"fmt"
	"strings"
)

// categorizationPrompt lists the closed category set the model should pick from
func categorizationPrompt(text string) string {
	var b strings.Builder
	b.WriteString("You are an invoice assistant. Categorize this invoice into one of the following categories:\n")
	for _, c := range Categories {
		b.WriteString("- ")
		b.WriteString(c)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nInvoice:\n%s\n\nCategory:\n", text)
	return b.String()
}

// receiptPrompt asks for the fields of a German hospitality receipt (Bewirtungsbeleg)
func receiptPrompt(text string) string {
	return fmt.Sprintf(`You are a restaurant receipt assistant. Extract the following fields as JSON:
- datum_bewirtung (e.g. 12.03.2024)
- ort_bewirtung (restaurant name + address)
- anlass (reason for the meal)
- personen (list of names, max %d)
- rechnungsbetrag (numeric, EUR)
- trinkgeld (numeric, optional)
- ort_datum_unterschrift (e.g. city, date)

Text:
"""
%s
"""
Return only JSON.`, MaxParticipants, text)
}
