package engine

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"trackfit/internal/domain"
	"trackfit/internal/engine/auth"
	"trackfit/internal/events"
	"trackfit/internal/repo"
	"trackfit/internal/tag"
)

// ErrExhaustedIdentifierSpace is returned when the issuance retry budget
// runs out without producing a collision-free id.
var ErrExhaustedIdentifierSpace = errors.New("identifier space exhausted")

// randomSerial draws a 4-digit serial from a cryptographically strong source.
func randomSerial() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%04d", n.Int64()), nil
}

// BuildID concatenates the id parts: 2-letter material code, last two
// digits of the year, vendor code verbatim, zero-padded 3-digit batch,
// 4-digit serial.
func BuildID(material domain.MaterialType, year int, vendorCode string, batchNo int, serial string) string {
	return fmt.Sprintf("%s%02d%s%03d%s", material.Code(), year%100, vendorCode, batchNo, serial)
}

// IssueOptions are parameters for issuing one unit identifier.
type IssueOptions struct {
	Material     domain.MaterialType
	VendorCode   string
	BatchNo      int
	Year         int
	VendorLot    string
	WarrantyDays int
	MfgDate      time.Time
}

// Issue produces a collision-free unit id and its tag payload text. It is
// pure computation plus registry reads; registration is the caller's
// explicit step.
func (e Engine) Issue(ctx context.Context, opts IssueOptions) (string, string, error) {
	if !opts.Material.Valid() {
		return "", "", fmt.Errorf("unknown material type %q", opts.Material)
	}
	budget := e.retryBudget()
	for attempt := 0; attempt < budget; attempt++ {
		serial, err := e.serial()
		if err != nil {
			return "", "", fmt.Errorf("draw serial: %w", err)
		}
		id := BuildID(opts.Material, opts.Year, opts.VendorCode, opts.BatchNo, serial)
		exists, err := e.Repo.UnitExists(ctx, id)
		if err != nil {
			return "", "", err
		}
		if exists {
			continue
		}
		payload := tag.Render(tag.Payload{
			UID:          id,
			Type:         opts.Material,
			VendorLot:    opts.VendorLot,
			MfgDate:      opts.MfgDate.Format(dateFormat),
			ExpiryDate:   opts.MfgDate.AddDate(0, 0, opts.WarrantyDays).Format(dateFormat),
			WarrantyDays: opts.WarrantyDays,
		})
		return id, payload, nil
	}
	return "", "", fmt.Errorf("after %d attempts: %w", budget, ErrExhaustedIdentifierSpace)
}

// GenerateOptions drive the bulk-generation workflow: quantity units per
// material type, one registry insert and one tag artifact per issued id.
type GenerateOptions struct {
	Materials    []domain.MaterialType
	VendorLot    string
	BatchNo      int
	Quantity     int
	VendorCode   string
	WarrantyDays int
	Actor        domain.Identity
}

// GenerateUnits issues and registers Quantity units for every requested
// material. A collision detected at insert time counts against the same
// retry budget as one detected at issue time.
func (e Engine) GenerateUnits(ctx context.Context, opts GenerateOptions) ([]domain.Unit, error) {
	if err := auth.RequireIssue(opts.Actor); err != nil {
		return nil, err
	}
	if len(opts.Materials) == 0 {
		return nil, errors.New("at least one material required")
	}
	if opts.Quantity <= 0 {
		return nil, errors.New("quantity must be positive")
	}
	for _, m := range opts.Materials {
		if !m.Valid() {
			return nil, fmt.Errorf("unknown material type %q", m)
		}
	}
	if opts.VendorCode == "" {
		opts.VendorCode = e.Config.Issuance.VendorCode
	}
	if opts.WarrantyDays == 0 {
		opts.WarrantyDays = e.Config.Issuance.WarrantyDays
	}

	now := e.now().UTC()
	mfg := now.Truncate(24 * time.Hour)
	var generated []domain.Unit
	for _, material := range opts.Materials {
		for i := 0; i < opts.Quantity; i++ {
			u, err := e.registerOne(ctx, material, opts, now, mfg)
			if err != nil {
				return generated, err
			}
			generated = append(generated, u)
		}
	}
	return generated, nil
}

func (e Engine) registerOne(ctx context.Context, material domain.MaterialType, opts GenerateOptions, now, mfg time.Time) (domain.Unit, error) {
	budget := e.retryBudget()
	for attempt := 0; attempt < budget; attempt++ {
		id, payload, err := e.Issue(ctx, IssueOptions{
			Material:     material,
			VendorCode:   opts.VendorCode,
			BatchNo:      opts.BatchNo,
			Year:         now.Year(),
			VendorLot:    opts.VendorLot,
			WarrantyDays: opts.WarrantyDays,
			MfgDate:      mfg,
		})
		if err != nil {
			return domain.Unit{}, err
		}
		tagRef, err := e.renderer().Render(id, payload)
		if err != nil {
			return domain.Unit{}, fmt.Errorf("render tag for %s: %w", id, err)
		}
		u := domain.Unit{
			ID:           id,
			MaterialType: material,
			VendorLot:    opts.VendorLot,
			MfgDate:      mfg.Format(dateFormat),
			ExpiryDate:   mfg.AddDate(0, 0, opts.WarrantyDays).Format(dateFormat),
			WarrantyDays: opts.WarrantyDays,
			Status:       domain.UnitPending,
			TagRef:       tagRef,
			CreatedAt:    now.Format(time.RFC3339),
		}
		err = e.insertUnit(ctx, u, opts.Actor.Username)
		if errors.Is(err, repo.ErrDuplicateID) {
			// Lost a race with a concurrent issuer; try a fresh serial.
			continue
		}
		if err != nil {
			return domain.Unit{}, err
		}
		return u, nil
	}
	return domain.Unit{}, fmt.Errorf("after %d attempts: %w", budget, ErrExhaustedIdentifierSpace)
}

func (e Engine) insertUnit(ctx context.Context, u domain.Unit, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertUnit(ctx, tx, u); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "unit.created", "unit", u.ID, actorID, events.EventPayload{
		"material_type": u.MaterialType,
		"expiry_date":   u.ExpiryDate,
	}); err != nil {
		return err
	}
	return tx.Commit()
}
