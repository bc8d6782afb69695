package domain

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// ActionType discriminates the action-config union.
type ActionType string

const (
	ActionEmail          ActionType = "email"
	ActionSMS            ActionType = "sms"
	ActionPush           ActionType = "push"
	ActionVoucher        ActionType = "voucher"
	ActionBonusPoints    ActionType = "bonusPoints"
	ActionManagerAlert   ActionType = "managerAlert"
	ActionCampaignEnroll ActionType = "campaignEnroll"
	ActionTierAdjust     ActionType = "tierAdjust"
	ActionTag            ActionType = "tag"
)

// ActionConfig carries the per-type parameters of an action. The config
// variant is chosen by construction, never validated after the fact.
type ActionConfig interface {
	ActionType() ActionType
}

// EmailActionConfig sends an email through a named provider. TemplateRef is
// provider-opaque.
type EmailActionConfig struct {
	Provider    string `json:"provider"`
	TemplateRef string `json:"templateRef"`
}

func (EmailActionConfig) ActionType() ActionType { return ActionEmail }

// SMSActionConfig sends an SMS through a named provider.
type SMSActionConfig struct {
	Provider    string `json:"provider"`
	MessageBody string `json:"messageBody"`
}

func (SMSActionConfig) ActionType() ActionType { return ActionSMS }

// PushActionConfig sends a push notification.
type PushActionConfig struct {
	MessageBody string `json:"messageBody"`
}

func (PushActionConfig) ActionType() ActionType { return ActionPush }

// VoucherActionConfig issues a voucher.
type VoucherActionConfig struct {
	Kind VoucherValue `json:"kind"`
}

func (VoucherActionConfig) ActionType() ActionType { return ActionVoucher }

// BonusPointsActionConfig grants bonus points.
type BonusPointsActionConfig struct {
	Amount int64 `json:"amount"`
}

func (BonusPointsActionConfig) ActionType() ActionType { return ActionBonusPoints }

// ManagerAlertActionConfig notifies staff holding a role.
type ManagerAlertActionConfig struct {
	RecipientRole string `json:"recipientRole"`
}

func (ManagerAlertActionConfig) ActionType() ActionType { return ActionManagerAlert }

// CampaignEnrollActionConfig enrolls the customer in a campaign. The ref is
// opaque; the core never checks that the campaign exists.
type CampaignEnrollActionConfig struct {
	CampaignRef string `json:"campaignRef"`
}

func (CampaignEnrollActionConfig) ActionType() ActionType { return ActionCampaignEnroll }

// TierAdjustMode selects how a tier adjustment moves the customer.
type TierAdjustMode string

const (
	TierAdjustUpgradeOne   TierAdjustMode = "upgradeOne"
	TierAdjustDowngradeOne TierAdjustMode = "downgradeOne"
	TierAdjustMaintain     TierAdjustMode = "maintain"
	TierAdjustResetToBase  TierAdjustMode = "resetToBase"
)

// TierAdjustActionConfig adjusts the customer's tier.
type TierAdjustActionConfig struct {
	Mode TierAdjustMode `json:"mode"`
}

func (TierAdjustActionConfig) ActionType() ActionType { return ActionTierAdjust }

// TagActionConfig writes a tag onto the customer record.
type TagActionConfig struct {
	TagName string `json:"tagName"`
}

func (TagActionConfig) ActionType() ActionType { return ActionTag }

// ActionInstance is one entry in a rule's ordered action list. Disabling an
// instance retains its config so re-enabling restores prior values.
type ActionInstance struct {
	ID      string
	Enabled bool
	Config  ActionConfig
}

// NewActionInstance creates an enabled instance with a fresh id.
func NewActionInstance(cfg ActionConfig) ActionInstance {
	return ActionInstance{
		ID:      uuid.New().String(),
		Enabled: true,
		Config:  cfg,
	}
}

// Type returns the action type implied by the config.
func (a ActionInstance) Type() ActionType {
	if a.Config == nil {
		return ""
	}
	return a.Config.ActionType()
}

type actionInstanceDoc struct {
	ID      string          `json:"id"`
	Type    ActionType      `json:"type"`
	Enabled bool            `json:"enabled"`
	Config  json.RawMessage `json:"config"`
}

// MarshalJSON serializes the instance with its type-keyed config.
func (a ActionInstance) MarshalJSON() ([]byte, error) {
	if a.Config == nil {
		return nil, fmt.Errorf("%w: action %s has no config", ErrInvalidInput, a.ID)
	}
	cfg, err := json.Marshal(a.Config)
	if err != nil {
		return nil, err
	}
	return json.Marshal(actionInstanceDoc{
		ID:      a.ID,
		Type:    a.Type(),
		Enabled: a.Enabled,
		Config:  cfg,
	})
}

// UnmarshalJSON deserializes the config variant keyed by type. Unknown types
// are rejected, never defaulted.
func (a *ActionInstance) UnmarshalJSON(data []byte) error {
	var doc actionInstanceDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	cfg, err := unmarshalActionConfig(doc.Type, doc.Config)
	if err != nil {
		return err
	}
	a.ID = doc.ID
	a.Enabled = doc.Enabled
	a.Config = cfg
	return nil
}

func unmarshalActionConfig(t ActionType, data []byte) (ActionConfig, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: action config is required", ErrInvalidInput)
	}
	var err error
	switch t {
	case ActionEmail:
		var c EmailActionConfig
		err = json.Unmarshal(data, &c)
		return c, err
	case ActionSMS:
		var c SMSActionConfig
		err = json.Unmarshal(data, &c)
		return c, err
	case ActionPush:
		var c PushActionConfig
		err = json.Unmarshal(data, &c)
		return c, err
	case ActionVoucher:
		var c VoucherActionConfig
		err = json.Unmarshal(data, &c)
		return c, err
	case ActionBonusPoints:
		var c BonusPointsActionConfig
		err = json.Unmarshal(data, &c)
		return c, err
	case ActionManagerAlert:
		var c ManagerAlertActionConfig
		err = json.Unmarshal(data, &c)
		return c, err
	case ActionCampaignEnroll:
		var c CampaignEnrollActionConfig
		err = json.Unmarshal(data, &c)
		return c, err
	case ActionTierAdjust:
		var c TierAdjustActionConfig
		err = json.Unmarshal(data, &c)
		return c, err
	case ActionTag:
		var c TagActionConfig
		err = json.Unmarshal(data, &c)
		return c, err
	default:
		return nil, fmt.Errorf("%w: unknown action type %q", ErrInvalidInput, t)
	}
}
