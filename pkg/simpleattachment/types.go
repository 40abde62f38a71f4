package simpleattachment

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// OwnerType enumerates the entity kinds an attachment may point at.
type OwnerType string

const (
	OwnerTypeUser         OwnerType = "user"
	OwnerTypeJob          OwnerType = "job"
	OwnerTypeResume       OwnerType = "resume"
	OwnerTypeChatMessage  OwnerType = "chat_message"
	OwnerTypePayment      OwnerType = "payment"
	OwnerTypeNotification OwnerType = "notification"
	OwnerTypePortfolio    OwnerType = "portfolio"
	OwnerTypeCertificate  OwnerType = "certificate"
	OwnerTypeCourse       OwnerType = "course"
	OwnerTypeLesson       OwnerType = "lesson"
)

var knownOwnerTypes = map[OwnerType]struct{}{
	OwnerTypeUser:         {},
	OwnerTypeJob:          {},
	OwnerTypeResume:       {},
	OwnerTypeChatMessage:  {},
	OwnerTypePayment:      {},
	OwnerTypeNotification: {},
	OwnerTypePortfolio:    {},
	OwnerTypeCertificate:  {},
	OwnerTypeCourse:       {},
	OwnerTypeLesson:       {},
}

// IsValid reports whether t is one of the known owner kinds.
func (t OwnerType) IsValid() bool {
	_, ok := knownOwnerTypes[t]
	return ok
}

// ParseOwnerType normalizes s and checks it against the known owner kinds.
func ParseOwnerType(s string) (OwnerType, error) {
	t := OwnerType(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", ErrUnknownOwnerType
	}
	return t, nil
}

// OwnerRef is a weak polymorphic reference to the entity an attachment
// belongs to. Both fields are always set; an absent owner is a nil *OwnerRef.
type OwnerRef struct {
	Type OwnerType `json:"owner_type"`
	ID   string    `json:"owner_id"`
}

// Validate rejects partial references and unknown owner kinds.
func (r OwnerRef) Validate() error {
	if r.Type == "" || strings.TrimSpace(r.ID) == "" {
		return ErrInvalidOwnerRef
	}
	if !r.Type.IsValid() {
		return ErrUnknownOwnerType
	}
	return nil
}

func (r OwnerRef) String() string {
	return string(r.Type) + ":" + r.ID
}

// NewOwnerRef builds an owner reference from its two halves. Both empty means
// no owner and yields nil; exactly one empty is an error.
func NewOwnerRef(ownerType, ownerID string) (*OwnerRef, error) {
	ownerType = strings.TrimSpace(ownerType)
	ownerID = strings.TrimSpace(ownerID)
	if ownerType == "" && ownerID == "" {
		return nil, nil
	}
	if ownerType == "" || ownerID == "" {
		return nil, ErrInvalidOwnerRef
	}
	t, err := ParseOwnerType(ownerType)
	if err != nil {
		return nil, err
	}
	return &OwnerRef{Type: t, ID: ownerID}, nil
}

// Attachment is the metadata record for one stored blob.
type Attachment struct {
	ID             uuid.UUID `json:"id"`
	AttachmentType string    `json:"attachment_type"`
	StoredPath     string    `json:"stored_path"`
	OriginalName   string    `json:"original_name"`
	DisplayName    string    `json:"display_name"`
	Extension      string    `json:"extension"`
	SizeBytes      int64     `json:"size_bytes"`
	Owner          *OwnerRef `json:"owner,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Category classifies the attachment by its extension.
func (a *Attachment) Category() Category {
	return Classify(a.Extension)
}

// Clone returns a deep copy of a.
func (a *Attachment) Clone() *Attachment {
	c := *a
	if a.Owner != nil {
		owner := *a.Owner
		c.Owner = &owner
	}
	return &c
}

// ObjectMeta contains metadata about a blob in storage
type ObjectMeta struct {
	Key         string
	Size        int64
	ContentType string
	UpdatedAt   time.Time
}
