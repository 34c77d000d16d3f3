package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/keyward/vouch/core"
	"github.com/keyward/vouch/ports"
)

const anchorCounter = "anchors"

// Postgres is a PostgreSQL implementation of the AnchorRegistry interface
type Postgres struct {
	db *gorm.DB
}

// NewPostgres creates a new PostgreSQL anchor registry and migrates its tables
func NewPostgres(db *gorm.DB) (ports.AnchorRegistry, error) {
	if err := db.AutoMigrate(&anchorModel{}, &deviceModel{}, &counterModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate anchor tables: %w", err)
	}
	return &Postgres{db: db}, nil
}

// Register allocates the next anchor number and stores the first device
func (r *Postgres) Register(ctx context.Context, device core.Device) (core.Anchor, error) {
	var anchor core.Anchor
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		number, err := nextAnchorNumber(tx)
		if err != nil {
			return err
		}

		anchor = core.Anchor{Number: number}
		if err := anchor.AddDevice(device); err != nil {
			return err
		}

		row := anchorModel{Number: uint64(number), CreatedAt: time.Now().UTC()}
		if err := tx.Create(&row).Error; err != nil {
			if isUniqueViolation(err) {
				return core.ErrAnchorExists
			}
			return err
		}

		return insertDevices(tx, number, anchor.Devices)
	})
	if err != nil {
		return core.Anchor{}, err
	}
	return anchor, nil
}

// Anchor loads an anchor by number
func (r *Postgres) Anchor(ctx context.Context, number core.AnchorNumber) (core.Anchor, error) {
	var row anchorModel
	err := r.db.WithContext(ctx).
		Where("number = ?", uint64(number)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return core.Anchor{}, core.ErrUnknownAnchor
		}
		return core.Anchor{}, err
	}

	var rows []deviceModel
	if err := r.db.WithContext(ctx).
		Where("anchor_number = ?", uint64(number)).
		Order("position ASC").
		Find(&rows).
		Error; err != nil {
		return core.Anchor{}, err
	}

	anchor := core.Anchor{Number: number, Devices: make([]core.Device, 0, len(rows))}
	for _, row := range rows {
		anchor.Devices = append(anchor.Devices, row.toDevice())
	}
	return anchor, nil
}

// Save overwrites the device list of an already registered anchor
func (r *Postgres) Save(ctx context.Context, anchor core.Anchor) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row anchorModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("number = ?", uint64(anchor.Number)).
			First(&row).
			Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return core.ErrUnknownAnchor
			}
			return err
		}

		// Replace the snapshot as a whole so device order survives
		if err := tx.Where("anchor_number = ?", uint64(anchor.Number)).
			Delete(&deviceModel{}).
			Error; err != nil {
			return err
		}

		return insertDevices(tx, anchor.Number, anchor.Devices)
	})
}

// nextAnchorNumber advances the allocation counter under a row lock.
func nextAnchorNumber(tx *gorm.DB) (core.AnchorNumber, error) {
	seed := counterModel{Name: anchorCounter, Value: uint64(FirstAnchorNumber)}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&seed).Error; err != nil {
		return 0, err
	}

	var counter counterModel
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("name = ?", anchorCounter).
		First(&counter).
		Error; err != nil {
		return 0, err
	}

	if err := tx.Model(&counterModel{}).
		Where("name = ?", anchorCounter).
		Update("value", counter.Value+1).
		Error; err != nil {
		return 0, err
	}

	return core.AnchorNumber(counter.Value), nil
}

func insertDevices(tx *gorm.DB, number core.AnchorNumber, devices []core.Device) error {
	for i, device := range devices {
		row := deviceModelFromCore(number, i, device)
		if err := tx.Create(&row).Error; err != nil {
			if isUniqueViolation(err) {
				return core.ErrDeviceExists
			}
			return err
		}
	}
	return nil
}

type anchorModel struct {
	Number    uint64    `gorm:"column:number;primaryKey"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (anchorModel) TableName() string {
	return "anchors"
}

type deviceModel struct {
	AnchorNumber uint64 `gorm:"column:anchor_number;primaryKey"`
	Position     int    `gorm:"column:position;primaryKey"`
	Pubkey       []byte `gorm:"column:pubkey"`
	Alias        string `gorm:"column:alias"`
	CredentialID []byte `gorm:"column:credential_id"`
	Purpose      string `gorm:"column:purpose"`
	KeyType      string `gorm:"column:key_type"`
	Protected    bool   `gorm:"column:protected"`
	Origin       string `gorm:"column:origin"`
	LastUsageNS  uint64 `gorm:"column:last_usage_ns"`
}

func (deviceModel) TableName() string {
	return "anchor_devices"
}

func deviceModelFromCore(number core.AnchorNumber, position int, device core.Device) deviceModel {
	return deviceModel{
		AnchorNumber: uint64(number),
		Position:     position,
		Pubkey:       append([]byte(nil), device.Pubkey...),
		Alias:        device.Alias,
		CredentialID: append([]byte(nil), device.CredentialID...),
		Purpose:      string(device.Purpose),
		KeyType:      string(device.KeyType),
		Protected:    device.Protected,
		Origin:       string(device.Origin),
		LastUsageNS:  uint64(device.LastUsage),
	}
}

func (m deviceModel) toDevice() core.Device {
	return core.Device{
		Pubkey:       append([]byte(nil), m.Pubkey...),
		Alias:        m.Alias,
		CredentialID: append([]byte(nil), m.CredentialID...),
		Purpose:      core.DevicePurpose(m.Purpose),
		KeyType:      core.DeviceKeyType(m.KeyType),
		Protected:    m.Protected,
		Origin:       core.Origin(m.Origin),
		LastUsage:    core.Timestamp(m.LastUsageNS),
	}
}

type counterModel struct {
	Name  string `gorm:"column:name;primaryKey"`
	Value uint64 `gorm:"column:value"`
}

func (counterModel) TableName() string {
	return "anchor_counters"
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
