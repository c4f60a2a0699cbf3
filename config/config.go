package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"

	"github.com/missionMeteora/mandrill"
)

var (
	ErrInvalidConfig = errors.New("invalid config")
)

func New(loc string) (*Config, error) {
	var c Config

	f, err := os.Open(loc)
	if err != nil {
		log.Println("Config error", err)
		return nil, err
	}

	if err := json.NewDecoder(f).Decode(&c); err != nil {
		f.Close()
		log.Println("Config error", err)
		return nil, err
	}
	f.Close()

	if c.TotalSeats <= 0 || c.OpportunityCost == 0 {
		return nil, ErrInvalidConfig
	}

	return &c, nil
}

type Config struct {
	Host string `json:"host"`
	Port string `json:"port"`

	DBPath string `json:"dbPath"`
	DBName string `json:"dbName"`

	Sandbox bool `json:"sandbox"`

	ServiceName string `json:"serviceName"`

	// Seats available on every new opportunity and the fixed amount (in
	// cents) captured from a company when it claims one.
	TotalSeats      int    `json:"totalSeats"`
	OpportunityCost uint64 `json:"opportunityCost"`

	TrackingPrefix string `json:"trackingPrefix"` // e.g. "CO"
	TokenSecret    string `json:"tokenSecret"`    // key for the opaque ID codec
	HookSecret     string `json:"hookSecret"`     // shared secret for inbound webhooks

	ImagesDir string `json:"imagesDir"`
	OpsEmail  string `json:"opsEmail"`

	Acceptance struct {
		OriginFR string `json:"originFr"`
		OriginEN string `json:"originEn"`
		Path     string `json:"path"`
	} `json:"acceptance"`

	Identity struct {
		Endpoint string `json:"endpoint"`
		Key      string `json:"key"`
	} `json:"identity"`

	CRM struct {
		Endpoint string `json:"endpoint"`
		Token    string `json:"token"`
	} `json:"crm"`

	Stripe struct {
		Key string `json:"key"`
	} `json:"stripe"`

	Twilio struct {
		SID   string `json:"sid"`
		Token string `json:"token"`
		From  string `json:"from"`
	} `json:"twilio"`

	Shortlink struct {
		Endpoint string `json:"endpoint"`
		Key      string `json:"key"`
		Domain   string `json:"domain"`
	} `json:"shortlink"`

	Maps struct {
		Endpoint string `json:"endpoint"`
		Key      string `json:"key"`
	} `json:"maps"`

	Mandrill struct {
		APIKey     string `json:"apiKey"`
		SubAccount string `json:"subAccount"`
		FromEmail  string `json:"fromEmail"`
		FromName   string `json:"fromName"`
	} `json:"mandrill"`

	Bucket struct {
		Opportunity  string   `json:"opportunity"`
		Notification string   `json:"notification"`
		All          []string `json:"all"`
	} `json:"bucket"`

	ec *mandrill.Client
}

// MailClient lazily builds the outbound mandrill client. Returns nil when
// mail is not configured (sandbox setups), callers must check.
func (c *Config) MailClient() *mandrill.Client {
	if c.Mandrill.APIKey == "" {
		return nil
	}
	if c.ec == nil {
		c.ec = mandrill.New(c.Mandrill.APIKey, c.Mandrill.SubAccount, c.Mandrill.FromEmail, c.Mandrill.FromName)
	}
	return c.ec
}

func (c *Config) AllBuckets() []string {
	if len(c.Bucket.All) != 0 {
		return c.Bucket.All
	}
	return []string{c.Bucket.Opportunity, c.Bucket.Notification}
}
