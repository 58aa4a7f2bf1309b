package domain

import "time"

type ContactInfo struct {
	Phone  string `json:"phone,omitempty"`
	WeChat string `json:"wechat,omitempty"`
	Email  string `json:"email,omitempty"`
}

type Teacher struct {
	ID          string
	WxOpenID    string
	Name        string
	Avatar      string
	Title       string
	Bio         string
	ContactInfo ContactInfo
	IsActive    bool
	CreatedAt   time.Time
}

// TeacherModule is one declared capability of a teacher. Modules are
// returned in SortOrder, which is also the order used when picking the
// "matched" entries for a report.
type TeacherModule struct {
	ID          string
	TeacherID   string
	Title       string
	Description string
	Tags        []string
	SortOrder   int
	IsActive    bool
}

type Broker struct {
	ID          string
	WxOpenID    string
	Name        string
	Avatar      string
	Title       string
	ContactInfo ContactInfo
	IsActive    bool
	CreatedAt   time.Time
}

func (b *Broker) Card() *BrokerCard {
	if b == nil {
		return nil
	}
	return &BrokerCard{
		ID:          b.ID,
		Name:        b.Name,
		Avatar:      b.Avatar,
		ContactInfo: b.ContactInfo,
	}
}
