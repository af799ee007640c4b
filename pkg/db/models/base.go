package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// assignID fills client-side ids so inserts behave the same on Postgres and SQLite.
func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	return nil
}

func (v *Variant) BeforeCreate(*gorm.DB) error {
	assignID(&v.ID)
	return nil
}

func (s *Sale) BeforeCreate(*gorm.DB) error {
	assignID(&s.ID)
	return nil
}

func (i *SaleItem) BeforeCreate(*gorm.DB) error {
	assignID(&i.ID)
	return nil
}

func (d *ProfitDistribution) BeforeCreate(*gorm.DB) error {
	assignID(&d.ID)
	return nil
}

func (a *Avatar) BeforeCreate(*gorm.DB) error {
	assignID(&a.ID)
	return nil
}

func (t *DistributionTemplate) BeforeCreate(*gorm.DB) error {
	assignID(&t.ID)
	return nil
}

func (e *DistributionTemplateEntry) BeforeCreate(*gorm.DB) error {
	assignID(&e.ID)
	return nil
}

func (p *PreOrder) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	return nil
}

func (e *OutboxEvent) BeforeCreate(*gorm.DB) error {
	assignID(&e.ID)
	return nil
}

func (d *OutboxDLQ) BeforeCreate(*gorm.DB) error {
	assignID(&d.ID)
	return nil
}

// All lists every model in dependency order, used by sqlite auto-migration.
func All() []any {
	return []any{
		&Product{},
		&Variant{},
		&Avatar{},
		&DistributionTemplate{},
		&DistributionTemplateEntry{},
		&PreOrder{},
		&Sale{},
		&SaleItem{},
		&ProfitDistribution{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
