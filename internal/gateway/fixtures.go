package gateway

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/and161185/allegro-webapi/internal/model"
)

// Fixtures is the YAML document a gateway serves from.
type Fixtures struct {
	Status     StatusFixture     `yaml:"status"`
	WebAPIKeys []string          `yaml:"webapi_keys"`
	Accounts   []AccountFixture  `yaml:"accounts"`
	Users      []UserFixture     `yaml:"users"`
	Items      []ItemFixture     `yaml:"items"`
	Categories []CategoryFixture `yaml:"categories"`
	Journal    []JournalFixture  `yaml:"journal"`
}

type StatusFixture struct {
	VerKey int64  `yaml:"ver_key"`
	Info   string `yaml:"info"`
}

// AccountFixture is a login the gateway accepts. Either Password or
// PasswordHash (the doLoginEnc encoding) must be set.
type AccountFixture struct {
	Login        string `yaml:"login"`
	Password     string `yaml:"password"`
	PasswordHash string `yaml:"password_hash"`
	UserID       int64  `yaml:"user_id"`
	CountryID    int    `yaml:"country_id"`
}

type UserFixture struct {
	ID      int64  `yaml:"id"`
	Login   string `yaml:"login"`
	Rating  int64  `yaml:"rating"`
	Country int64  `yaml:"country"`
}

type ItemFixture struct {
	ID          int64          `yaml:"id"`
	Name        string         `yaml:"name"`
	Location    string         `yaml:"location"`
	SellerID    int64          `yaml:"seller_id"`
	Condition   int            `yaml:"condition"` // 1 new, 2 used
	BuyNowPrice float64        `yaml:"buy_now_price"`
	EndingTime  time.Time      `yaml:"ending_time"`
	Images      []ImageFixture `yaml:"images"`
}

type ImageFixture struct {
	Type int    `yaml:"type"`
	URL  string `yaml:"url"`
}

type CategoryFixture struct {
	ID     int64  `yaml:"id"`
	Name   string `yaml:"name"`
	Parent int64  `yaml:"parent"`
}

type JournalFixture struct {
	ItemID     int64  `yaml:"item_id"`
	ChangeType string `yaml:"change_type"`
}

// LoadFixtures reads and parses a fixtures file.
func LoadFixtures(path string) (*Fixtures, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}
	return ParseFixtures(raw)
}

// ParseFixtures parses a fixtures document and checks references.
func ParseFixtures(raw []byte) (*Fixtures, error) {
	var f Fixtures
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse fixtures: %w", err)
	}
	if len(f.WebAPIKeys) == 0 {
		return nil, fmt.Errorf("fixtures: at least one webapi key required")
	}
	for _, a := range f.Accounts {
		if a.Login == "" || (a.Password == "" && a.PasswordHash == "") {
			return nil, fmt.Errorf("fixtures: account %q needs login and password or password_hash", a.Login)
		}
	}
	cats := make(map[int64]bool, len(f.Categories))
	for _, c := range f.Categories {
		cats[c.ID] = true
	}
	for _, c := range f.Categories {
		if c.Parent != 0 && !cats[c.Parent] {
			return nil, fmt.Errorf("fixtures: category %d has unknown parent %d", c.ID, c.Parent)
		}
	}
	for _, j := range f.Journal {
		if _, ok := model.KindOf(j.ChangeType); !ok {
			return nil, fmt.Errorf("fixtures: journal entry for item %d has unknown change_type %q", j.ItemID, j.ChangeType)
		}
	}
	return &f, nil
}
