package model

// AccountSpec describes one mailbox to create in the identity provider.
// Password is optional; when empty a policy-compliant password is generated.
// Password never reaches the ledger: it is sealed into PasswordToken first.
type AccountSpec struct {
	AccountID     string `yaml:"account_id" json:"account_id"`
	Domain        string `yaml:"domain" json:"domain"`
	LocalPart     string `yaml:"local_part" json:"local_part"`
	FirstName     string `yaml:"first_name" json:"first_name"`
	LastName      string `yaml:"last_name" json:"last_name"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
	PasswordToken string `yaml:"password_token,omitempty" json:"password_token,omitempty"`
	OrgUnitPath   string `yaml:"org_unit_path,omitempty" json:"org_unit_path,omitempty"`
}

// Email returns local-part@domain.
func (s AccountSpec) Email() string {
	return s.LocalPart + "@" + s.Domain
}

// WarmupSettings are the warmup parameters of a connected mailbox.
type WarmupSettings struct {
	Enabled         bool   `yaml:"enabled" json:"enabled"`
	DailyLimit      int    `yaml:"daily_limit" json:"daily_limit"`
	RampUpIncrement int    `yaml:"ramp_up_increment" json:"ramp_up_increment"`
	ReplyRate       int    `yaml:"reply_rate" json:"reply_rate"`
	Tag             string `yaml:"tag,omitempty" json:"tag,omitempty"`
}

// DefaultWarmupSettings returns conservative settings for newly connected mailboxes.
func DefaultWarmupSettings() WarmupSettings {
	return WarmupSettings{Enabled: true, DailyLimit: 20, RampUpIncrement: 2, ReplyRate: 30}
}

// WarmupSettingsPatch is a partial update. Nil fields are left unchanged.
type WarmupSettingsPatch struct {
	Enabled         *bool   `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	DailyLimit      *int    `yaml:"daily_limit,omitempty" json:"daily_limit,omitempty"`
	RampUpIncrement *int    `yaml:"ramp_up_increment,omitempty" json:"ramp_up_increment,omitempty"`
	ReplyRate       *int    `yaml:"reply_rate,omitempty" json:"reply_rate,omitempty"`
	Tag             *string `yaml:"tag,omitempty" json:"tag,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p WarmupSettingsPatch) IsEmpty() bool {
	return p.Enabled == nil && p.DailyLimit == nil && p.RampUpIncrement == nil && p.ReplyRate == nil && p.Tag == nil
}

// Apply returns s with the patch applied.
func (p WarmupSettingsPatch) Apply(s WarmupSettings) WarmupSettings {
	if p.Enabled != nil {
		s.Enabled = *p.Enabled
	}
	if p.DailyLimit != nil {
		s.DailyLimit = *p.DailyLimit
	}
	if p.RampUpIncrement != nil {
		s.RampUpIncrement = *p.RampUpIncrement
	}
	if p.ReplyRate != nil {
		s.ReplyRate = *p.ReplyRate
	}
	if p.Tag != nil {
		s.Tag = *p.Tag
	}
	return s
}

// ConnectSpec describes one mailbox to register with the warmup service.
// SMTP/IMAP logins are looked up from the credential store by AccountID.
type ConnectSpec struct {
	AccountID   string         `yaml:"account_id" json:"account_id"`
	Email       string         `yaml:"email" json:"email"`
	DisplayName string         `yaml:"display_name,omitempty" json:"display_name,omitempty"`
	Warmup      WarmupSettings `yaml:"warmup" json:"warmup"`
}
