package subscription

import (
	"time"

	"github.com/google/uuid"
	"github.com/mudler/xlog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	models "github.com/coachly/coachd/dbmodels"
)

const (
	// FreeTrialLimit messages per user per premium agent.
	FreeTrialLimit = 10
	// MaxFreeAgents a non-premium creator may own.
	MaxFreeAgents = 2
)

// Denial codes surfaced to clients in 403 bodies.
const (
	CodePremiumRequired    = "PREMIUM_REQUIRED"
	CodeFreeTrialExhausted = "FREE_TRIAL_EXHAUSTED"
)

// Denial explains why an operation was refused.
type Denial struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// IsPremium reports whether the user's subscription is active.
func IsPremium(user *models.User) bool {
	if user.SubscriptionTier != models.TierPremium {
		return false
	}
	if user.SubscriptionExpiresAt != nil && user.SubscriptionExpiresAt.Before(time.Now()) {
		return false
	}
	return true
}

// CanSendMessage gates chatting with an agent. Free agents are open to
// everyone; premium agents require an active subscription or remaining
// free-trial messages. Returns a nil Denial when allowed, along with the
// remaining trial allowance when the trial is what grants access.
func (s *Service) CanSendMessage(user *models.User, agent *models.Agent) (*Denial, *int, error) {
	if agent.Tier != models.TierPremium || IsPremium(user) {
		return nil, nil, nil
	}

	remaining, err := s.TrialRemaining(user.ID, agent.ID)
	if err != nil {
		return nil, nil, err
	}
	if remaining <= 0 {
		return &Denial{
			Code:    CodeFreeTrialExhausted,
			Message: "Free trial for this coach is used up. Upgrade to keep chatting.",
		}, nil, nil
	}
	return nil, &remaining, nil
}

// TrialRemaining returns how many trial messages the user still has with
// the agent.
func (s *Service) TrialRemaining(userID, agentID uuid.UUID) (int, error) {
	var usage models.FreeTrialUsage
	err := s.db.Where("user_id = ? AND agent_id = ?", userID, agentID).First(&usage).Error
	if err == gorm.ErrRecordNotFound {
		return FreeTrialLimit, nil
	}
	if err != nil {
		return 0, err
	}
	remaining := FreeTrialLimit - usage.MessagesUsed
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// ConsumeTrialMessage records one trial message. Only called for
// non-premium users on premium agents after a successful assistant reply.
func (s *Service) ConsumeTrialMessage(userID, agentID uuid.UUID) (int, error) {
	usage := models.FreeTrialUsage{UserID: userID, AgentID: agentID, MessagesUsed: 0}
	if err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "agent_id"}},
		DoNothing: true,
	}).Create(&usage).Error; err != nil {
		return 0, err
	}

	if err := s.db.Model(&models.FreeTrialUsage{}).
		Where("user_id = ? AND agent_id = ?", userID, agentID).
		UpdateColumn("messages_used", gorm.Expr("messages_used + 1")).Error; err != nil {
		return 0, err
	}
	return s.TrialRemaining(userID, agentID)
}

// CanCreateAgent gates coach creation: free creators are capped at
// MaxFreeAgents.
func (s *Service) CanCreateAgent(user *models.User) (*Denial, error) {
	if IsPremium(user) {
		return nil, nil
	}
	var count int64
	if err := s.db.Model(&models.Agent{}).
		Where("creator_id = ?", user.ID).
		Count(&count).Error; err != nil {
		return nil, err
	}
	if count >= MaxFreeAgents {
		return &Denial{
			Code:    CodePremiumRequired,
			Message: "Creating more coaches requires a premium subscription.",
		}, nil
	}
	return nil, nil
}

// CanUseAgentTier gates setting an agent to PREMIUM: only premium creators
// may publish premium coaches.
func (s *Service) CanUseAgentTier(user *models.User, tier string) *Denial {
	if tier == models.TierPremium && !IsPremium(user) {
		return &Denial{
			Code:    CodePremiumRequired,
			Message: "Premium coaches require a premium subscription.",
		}
	}
	return nil
}

// DowngradeExpired resets users whose premium subscription has lapsed.
// Runs on a cron schedule.
func (s *Service) DowngradeExpired() {
	res := s.db.Model(&models.User{}).
		Where("subscription_tier = ? AND subscription_expires_at IS NOT NULL AND subscription_expires_at < ?",
			models.TierPremium, time.Now()).
		Update("subscription_tier", models.TierFree)
	if res.Error != nil {
		xlog.Error("Subscription downgrade sweep failed", "error", res.Error)
		return
	}
	if res.RowsAffected > 0 {
		xlog.Info("Downgraded expired subscriptions", "count", res.RowsAffected)
	}
}
