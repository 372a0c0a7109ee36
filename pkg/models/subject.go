package models

// Subject identifies one exam subject. The set is fixed.
type Subject string

const (
	SubjectNederlands     Subject = "nederlands"
	SubjectEngels         Subject = "engels"
	SubjectWiskundeA      Subject = "wiskunde-a"
	SubjectWiskundeB      Subject = "wiskunde-b"
	SubjectGeschiedenis   Subject = "geschiedenis"
	SubjectAardrijkskunde Subject = "aardrijkskunde"
	SubjectEconomie       Subject = "economie"
	SubjectBiologie       Subject = "biologie"
)

// Subjects lists every known subject in display order.
var Subjects = []Subject{
	SubjectNederlands,
	SubjectEngels,
	SubjectWiskundeA,
	SubjectWiskundeB,
	SubjectGeschiedenis,
	SubjectAardrijkskunde,
	SubjectEconomie,
	SubjectBiologie,
}

// Valid reports whether s is one of the known subjects.
func (s Subject) Valid() bool {
	for _, known := range Subjects {
		if s == known {
			return true
		}
	}
	return false
}

// Tier is a subscription level.
type Tier string

const (
	TierFree   Tier = "free"
	TierFocus  Tier = "focus"
	TierTotaal Tier = "totaal"
)

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierFocus, TierTotaal:
		return true
	}
	return false
}

// Paid reports whether t is a paying tier.
func (t Tier) Paid() bool {
	return t == TierFocus || t == TierTotaal
}
