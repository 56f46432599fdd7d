// Package models provides the data models for the ingestion pipeline.
// RawRecord is the parser's output and the normalizer's input; Customer is
// the canonical record shape persisted to the store; Batch groups the
// normalized records produced from a single source file.
package models

import (
	"time"
)

// RawRecord is a row-oriented record as produced by the parser: raw
// column or key names (arbitrary casing and whitespace) mapped to raw
// values. Values are strings for delimited input; structured input may
// additionally carry numbers and booleans.
type RawRecord = map[string]any

// Customer is the canonical normalized record. Index is the primary
// identity; CustomerID carries a store-level uniqueness constraint.
// Optional fields are pointers so a missing value survives the round
// trip to the store as NULL rather than an empty string.
type Customer struct {
	Index            int64     `json:"index"`
	CustomerID       string    `json:"customer_id"`
	FirstName        string    `json:"first_name"`
	LastName         string    `json:"last_name"`
	Company          string    `json:"company"`
	City             string    `json:"city"`
	Country          string    `json:"country"`
	Phone1           *string   `json:"phone_1,omitempty"`
	Phone2           *string   `json:"phone_2,omitempty"`
	Email            string    `json:"email"`
	SubscriptionDate time.Time `json:"subscription_date"`
	Website          *string   `json:"website,omitempty"`
	SourceFile       string    `json:"source_file"`
	IngestedAt       time.Time `json:"ingested_at"`
}

// Equal reports whether two records are field-wise identical. Used for
// in-batch duplicate collapse, so it compares every field including the
// provenance columns.
func (c Customer) Equal(other Customer) bool {
	return c.Index == other.Index &&
		c.CustomerID == other.CustomerID &&
		c.FirstName == other.FirstName &&
		c.LastName == other.LastName &&
		c.Company == other.Company &&
		c.City == other.City &&
		c.Country == other.Country &&
		ptrEqual(c.Phone1, other.Phone1) &&
		ptrEqual(c.Phone2, other.Phone2) &&
		c.Email == other.Email &&
		c.SubscriptionDate.Equal(other.SubscriptionDate) &&
		ptrEqual(c.Website, other.Website) &&
		c.SourceFile == other.SourceFile &&
		c.IngestedAt.Equal(other.IngestedAt)
}

func ptrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Batch is the ordered collection of normalized records produced from one
// source file. It is the unit of loading.
type Batch struct {
	SourceFile string
	Records    []Customer
}

// Empty reports whether the batch holds no records.
func (b *Batch) Empty() bool {
	return b == nil || len(b.Records) == 0
}

// Size returns the number of records in the batch.
func (b *Batch) Size() int {
	if b == nil {
		return 0
	}
	return len(b.Records)
}
