package models

// Field names of the remote user document.
const (
	FieldLevel                = "level"
	FieldXP                   = "xp"
	FieldStudyStreak          = "studyStreak"
	FieldEarnedBadges         = "earnedBadges"
	FieldPerSubjectData       = "perSubjectData"
	FieldGlobalPulseCheck     = "globalPulseCheck"
	FieldSubscriptionTier     = "subscriptionTier"
	FieldIsPremium            = "isPremium"
	FieldPrimarySubject       = "primarySubject"
	FieldStripeCustomerID     = "stripeCustomerId"
	FieldStripeSubscriptionID = "stripeSubscriptionId"
)

// BillingFields may only be written through the immediate tier path.
var BillingFields = []string{
	FieldSubscriptionTier,
	FieldIsPremium,
	FieldPrimarySubject,
	FieldStripeCustomerID,
	FieldStripeSubscriptionID,
}

// IsBillingField reports whether name belongs to BillingFields.
func IsBillingField(name string) bool {
	for _, f := range BillingFields {
		if f == name {
			return true
		}
	}
	return false
}

// Document is the remote per-user document. Pointer fields are nil when the
// stored document does not carry them.
type Document struct {
	Level                *int                         `json:"level,omitempty" bson:"level,omitempty"`
	XP                   *int                         `json:"xp,omitempty" bson:"xp,omitempty"`
	StudyStreak          *int                         `json:"studyStreak,omitempty" bson:"studyStreak,omitempty"`
	EarnedBadges         []string                     `json:"earnedBadges,omitempty" bson:"earnedBadges,omitempty"`
	PerSubjectData       map[Subject]*SubjectProgress `json:"perSubjectData,omitempty" bson:"perSubjectData,omitempty"`
	GlobalPulseCheck     *WeekMarker                  `json:"globalPulseCheck,omitempty" bson:"globalPulseCheck,omitempty"`
	SubscriptionTier     *Tier                        `json:"subscriptionTier,omitempty" bson:"subscriptionTier,omitempty"`
	IsPremium            *bool                        `json:"isPremium,omitempty" bson:"isPremium,omitempty"`
	PrimarySubject       *Subject                     `json:"primarySubject,omitempty" bson:"primarySubject,omitempty"`
	StripeCustomerID     *string                      `json:"stripeCustomerId,omitempty" bson:"stripeCustomerId,omitempty"`
	StripeSubscriptionID *string                      `json:"stripeSubscriptionId,omitempty" bson:"stripeSubscriptionId,omitempty"`
}

// DefaultDocumentFields are written when a user document is first created.
func DefaultDocumentFields() map[string]any {
	return map[string]any{
		FieldLevel:            1,
		FieldXP:               0,
		FieldStudyStreak:      0,
		FieldEarnedBadges:     []string{},
		FieldSubscriptionTier: TierFree,
	}
}
