package model

import "time"

// Status represents the lifecycle state of a commitment occurrence.
type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
)

// Category classifies a commitment.
type Category string

const (
	CategoryLoan       Category = "loan"
	CategoryCreditCard Category = "credit_card"
	CategoryInsurance  Category = "insurance"
	CategoryBill       Category = "bill"
	CategoryOther      Category = "other"
)

// ValidCategory reports whether c is one of the known categories.
func ValidCategory(c Category) bool {
	switch c {
	case CategoryLoan, CategoryCreditCard, CategoryInsurance, CategoryBill, CategoryOther:
		return true
	}
	return false
}

// Frequency is the recurrence unit of a rule.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

// ValidFrequency reports whether f is one of the known frequencies.
func ValidFrequency(f Frequency) bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyYearly:
		return true
	}
	return false
}

// Rule governs how successor occurrences of a recurring commitment are
// generated. A Rule is copied forward to each spawned successor, so edits to
// one occurrence never retroactively move earlier ones.
type Rule struct {
	Frequency  Frequency
	Interval   int       // multiplier of the frequency unit, >= 1
	ByWeekday  []int     // 0-6, weekly only
	ByMonthDay []int     // 1-31, monthly/yearly only
	StartDate  time.Time // anchor for the first occurrence of the series
	EndDate    *time.Time
	Remaining  *int // bound on future spawns; removed once exhausted, never 0
}

// Clone returns a deep copy of the rule.
func (r Rule) Clone() Rule {
	c := r
	c.ByWeekday = append([]int(nil), r.ByWeekday...)
	c.ByMonthDay = append([]int(nil), r.ByMonthDay...)
	if r.EndDate != nil {
		end := *r.EndDate
		c.EndDate = &end
	}
	if r.Remaining != nil {
		rem := *r.Remaining
		c.Remaining = &rem
	}
	return c
}

// Commitment is one due occurrence of a (possibly recurring) financial
// obligation. A series is a chain of occurrences linked only by shared
// display fields and a rolling rule, not by a foreign key.
type Commitment struct {
	ID          string
	OwnerID     string
	AccountID   string
	Name        string
	Category    Category
	AmountCents int64 // minor currency units, never negative
	Currency    string
	Status      Status
	DueDate     time.Time
	PaidAt      *time.Time // set only while paid
	IsRecurring bool
	Rule        *Rule // present only when IsRecurring
	Note        string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Paid reports whether the occurrence is in the paid state.
func (c Commitment) Paid() bool {
	return c.Status == StatusPaid
}
