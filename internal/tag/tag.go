// Package tag implements the text payload encoded on a unit's scannable
// tag and the collaborator interfaces that render and decode it.
package tag

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"trackfit/internal/domain"
)

// ErrMalformedPayload indicates tag text that fails the key:value grammar.
var ErrMalformedPayload = errors.New("malformed tag payload")

// ErrNotDetected is returned by decoders when no tag is found in the input.
var ErrNotDetected = errors.New("no tag detected")

// Payload is the self-describing record carried by a tag. Field order on
// the wire is fixed: UID, Type, VendorLot, MfgDate, ExpiryDate, WarrantyDays.
type Payload struct {
	UID          string
	Type         domain.MaterialType
	VendorLot    string
	MfgDate      string
	ExpiryDate   string
	WarrantyDays int
}

// Render produces the exact semicolon-delimited text encoded on the tag.
func Render(p Payload) string {
	return fmt.Sprintf("UID:%s;Type:%s;VendorLot:%s;MfgDate:%s;ExpiryDate:%s;WarrantyDays:%d",
		p.UID, p.Type, p.VendorLot, p.MfgDate, p.ExpiryDate, p.WarrantyDays)
}

// RenderUnit builds the payload text for a registered unit.
func RenderUnit(u domain.Unit) string {
	return Render(Payload{
		UID:          u.ID,
		Type:         u.MaterialType,
		VendorLot:    u.VendorLot,
		MfgDate:      u.MfgDate,
		ExpiryDate:   u.ExpiryDate,
		WarrantyDays: u.WarrantyDays,
	})
}

// Parse decodes payload text into its fields. Unknown keys are ignored so
// decoders may carry extra data; a missing UID is malformed.
func Parse(text string) (Payload, error) {
	fields, err := split(text)
	if err != nil {
		return Payload{}, err
	}
	p := Payload{
		UID:        fields["UID"],
		Type:       domain.MaterialType(fields["Type"]),
		VendorLot:  fields["VendorLot"],
		MfgDate:    fields["MfgDate"],
		ExpiryDate: fields["ExpiryDate"],
	}
	if p.UID == "" {
		return Payload{}, fmt.Errorf("%w: missing UID", ErrMalformedPayload)
	}
	if wd := fields["WarrantyDays"]; wd != "" {
		n, err := strconv.Atoi(wd)
		if err != nil {
			return Payload{}, fmt.Errorf("%w: WarrantyDays %q", ErrMalformedPayload, wd)
		}
		p.WarrantyDays = n
	}
	return p, nil
}

// ExtractUID pulls only the UID field out of payload text. This is the
// minimal parse needed to resolve a unit from a scan.
func ExtractUID(text string) (string, error) {
	fields, err := split(text)
	if err != nil {
		return "", err
	}
	uid := fields["UID"]
	if uid == "" {
		return "", fmt.Errorf("%w: missing UID", ErrMalformedPayload)
	}
	return uid, nil
}

func split(text string) (map[string]string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrMalformedPayload
	}
	fields := map[string]string{}
	for _, part := range strings.Split(text, ";") {
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, ":")
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: segment %q", ErrMalformedPayload, part)
		}
		fields[key] = value
	}
	if len(fields) == 0 {
		return nil, ErrMalformedPayload
	}
	return fields, nil
}
