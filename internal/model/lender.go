package model

import "time"

// Lender is one canonical registry entry plus the home-loan product terms
// refreshed by the lender pipeline. Only ID and LenderName are required;
// the term columns are filled in by successive refreshes.
type Lender struct {
	ID         string `json:"id"`
	LenderName string `json:"lender_name"`

	HomeLoanROI    string `json:"home_loan_roi,omitempty"`
	LoanToValue    string `json:"loan_to_value,omitempty"`
	MinCreditScore int    `json:"min_credit_score,omitempty"`
	MinLoanAmount  int64  `json:"min_loan_amount,omitempty"`
	MaxLoanAmount  int64  `json:"max_loan_amount,omitempty"`
	MinTenureYears int    `json:"min_tenure_years,omitempty"`
	MaxTenureYears int    `json:"max_tenure_years,omitempty"`
	ApprovalTime   string `json:"approval_time,omitempty"`
	ProcessingFees string `json:"processing_fees,omitempty"`
	SpecialOffers  string `json:"special_offers,omitempty"`

	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}
