package scanning

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// MaxParticipants caps the names kept from a model response
const MaxParticipants = 10

// ReceiptInfo contains the fields of a hospitality receipt as read by a model.
// Every field is optional; the zero value is an empty record.
type ReceiptInfo struct {
	Date              Value `json:"datum_bewirtung"`
	Venue             Value `json:"ort_bewirtung"`
	Reason            Value `json:"anlass"`
	Participants      Names `json:"personen"`
	Amount            Value `json:"rechnungsbetrag"`
	Tip               Value `json:"trinkgeld"`
	SignaturePlaceDay Value `json:"ort_datum_unterschrift"`
}

// IsEmpty reports whether no field was found
func (r ReceiptInfo) IsEmpty() bool {
	return !r.Date.IsSet() && !r.Venue.IsSet() && !r.Reason.IsSet() &&
		len(r.Participants) == 0 && !r.Amount.IsSet() && !r.Tip.IsSet() &&
		!r.SignaturePlaceDay.IsSet()
}

// Value is an optional scalar taken verbatim from model JSON. Strings,
// numbers and booleans are all accepted and kept in their textual form, so a
// non-numeric amount survives untouched.
type Value struct {
	text string
	set  bool
}

// NewValue returns a set Value holding s
func NewValue(s string) Value {
	return Value{text: s, set: true}
}

// IsSet reports whether the model provided the field
func (v Value) IsSet() bool {
	return v.set
}

// String returns the textual form, empty when absent
func (v Value) String() string {
	return v.text
}

// UnmarshalJSON accepts any JSON value; null means absent
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = Value{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = NewValue(s)
		return nil
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, data); err != nil {
		return err
	}
	*v = NewValue(compact.String())
	return nil
}

// MarshalJSON writes absent values as null and everything else as a string
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.set {
		return []byte("null"), nil
	}
	return json.Marshal(v.text)
}

// Names is a list of participant names
type Names []string

// UnmarshalJSON accepts an array of scalars or a single comma separated
// string, drops blanks and keeps at most MaxParticipants names.
func (n *Names) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*n = nil
		return nil
	}

	var raw []Value
	switch data[0] {
	case '[':
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("decoding names: %w", err)
		}
	default:
		var single Value
		if err := json.Unmarshal(data, &single); err != nil {
			return fmt.Errorf("decoding names: %w", err)
		}
		for _, part := range strings.Split(single.String(), ",") {
			raw = append(raw, NewValue(part))
		}
	}

	names := make(Names, 0, len(raw))
	for _, v := range raw {
		name := strings.TrimSpace(v.String())
		if name == "" {
			continue
		}
		names = append(names, name)
		if len(names) == MaxParticipants {
			break
		}
	}
	*n = names
	return nil
}
