package localstore

import "github.com/example/examprep/pkg/models"

// Keys of the local state namespace.
const (
	KeyLevel            = "level"
	KeyXP               = "xp"
	KeyStudyStreak      = "studyStreak"
	KeyLastVisitDate    = "lastVisitDate"
	KeyEarnedBadges     = "earnedBadges"
	KeySubscriptionTier = "subscriptionTier"
	KeyPrimarySubject   = "primarySubject"
	KeyGlobalPulseCheck = "globalPulseCheck"
	KeyAIAnswersUsed    = "aiAnswersUsed"
	KeyChatMessagesUsed = "chatMessagesUsed"
	KeyPendingPlan      = "pendingPlan"

	subjectKeyPrefix = "perSubjectData:"
)

// SubjectKey is the key holding the progress of one subject.
func SubjectKey(s models.Subject) string {
	return subjectKeyPrefix + string(s)
}
