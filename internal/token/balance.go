package token

// Balance is the projection of a user's transaction stream. Paid tokens
// are fungible; free tokens live in per-beneficiary buckets. A bucket can
// carry negative residue from over-consumption, which stays visible in
// the map for diagnostics but never counts toward the total.
type Balance struct {
	UserID                   string           `json:"userId"`
	PaidTokens               int64            `json:"paidTokens"`
	FreeTokensPerBeneficiary map[string]int64 `json:"freeTokensPerBeneficiary"`
	TotalFreeTokens          int64            `json:"totalFreeTokens"`
}

// NewBalance returns an empty balance for the user.
func NewBalance(userID string) *Balance {
	return &Balance{
		UserID:                   userID,
		FreeTokensPerBeneficiary: make(map[string]int64),
	}
}

// FreeFor returns the usable free tokens in one beneficiary bucket,
// clamping negative residue to zero.
func (b *Balance) FreeFor(beneficiaryID string) int64 {
	if v := b.FreeTokensPerBeneficiary[beneficiaryID]; v > 0 {
		return v
	}
	return 0
}

// UsableFor returns how much the user can spend toward the given
// beneficiary: usable paid tokens plus the beneficiary bucket plus the
// system bucket. When the beneficiary IS the system bucket, that bucket
// counts exactly once.
func (b *Balance) UsableFor(beneficiaryID string) int64 {
	paid := b.PaidTokens
	if paid < 0 {
		paid = 0
	}
	usable := paid + b.FreeFor(beneficiaryID)
	if beneficiaryID != SystemBeneficiaryID {
		usable += b.FreeFor(SystemBeneficiaryID)
	}
	return usable
}

// RecomputeTotal refreshes TotalFreeTokens from the positive buckets.
func (b *Balance) RecomputeTotal() {
	var total int64
	for _, v := range b.FreeTokensPerBeneficiary {
		if v > 0 {
			total += v
		}
	}
	b.TotalFreeTokens = total
}
