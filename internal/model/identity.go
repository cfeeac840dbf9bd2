package model

import (
	"encoding/json"
	"time"
)

// MemberID is the immutable platform account id of a guild member.
// Display names can change at any time, so they are never used as keys.
type MemberID string

// PseudonymID is a 12-character opaque identifier standing in for a member's
// real account in relayed messages.
type PseudonymID string

// Role is a member's stored tier in the identity table.
type Role string

const (
	RoleUser   Role = "user"
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// Valid reports whether r is one of the known stored roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleMember || r == RoleAdmin
}

// RoleEvent is one append-only entry in a member's role history.
type RoleEvent struct {
	Role      Role      `json:"role"`
	Timestamp time.Time `json:"timestamp"`
}

// IdentityRecord is the structured per-member record.
type IdentityRecord struct {
	MemberID    MemberID    `json:"-"`
	DisplayName string      `json:"display_name,omitempty"`
	UserID      PseudonymID `json:"user_id"`
	Role        Role        `json:"role"`
	// AdminID is set iff Role is admin.
	AdminID *PseudonymID `json:"admin_id"`
	// RoleHistory only ever grows; entries are never reordered or removed.
	RoleHistory      []RoleEvent `json:"role_history"`
	LastAdminRequest *time.Time  `json:"last_admin_request,omitempty"`
}

// Clone returns a deep copy, so storage backends can hand out records
// without aliasing their internal state.
func (r *IdentityRecord) Clone() *IdentityRecord {
	if r == nil {
		return nil
	}
	out := *r
	if r.AdminID != nil {
		id := *r.AdminID
		out.AdminID = &id
	}
	if r.LastAdminRequest != nil {
		t := *r.LastAdminRequest
		out.LastAdminRequest = &t
	}
	out.RoleHistory = append([]RoleEvent(nil), r.RoleHistory...)
	return &out
}

// EarliestRoleTimestamp returns the minimum history timestamp among entries
// matching role. The second return is false when the member never held role.
func (r *IdentityRecord) EarliestRoleTimestamp(role Role) (time.Time, bool) {
	var earliest time.Time
	found := false
	for _, ev := range r.RoleHistory {
		if ev.Role != role {
			continue
		}
		if !found || ev.Timestamp.Before(earliest) {
			earliest = ev.Timestamp
			found = true
		}
	}
	return earliest, found
}

// Identity is the stored value for a member: either a bare legacy pseudonym
// left over from the old data format, or a structured record. Exactly one of
// Legacy and Record is set.
type Identity struct {
	MemberID MemberID
	Legacy   PseudonymID
	Record   *IdentityRecord
}

// IsLegacy reports whether the entry still uses the bare-string format and
// needs migration before it can be used.
func (i *Identity) IsLegacy() bool {
	return i.Record == nil
}

// Pseudonyms returns every pseudonym id held by this entry.
func (i *Identity) Pseudonyms() []PseudonymID {
	if i.IsLegacy() {
		return []PseudonymID{i.Legacy}
	}
	ids := []PseudonymID{i.Record.UserID}
	if i.Record.AdminID != nil {
		ids = append(ids, *i.Record.AdminID)
	}
	return ids
}

// SetMember stamps the owning member id on the entry and its record.
// Storage backends call it when keys and values are joined back together.
func (i *Identity) SetMember(member MemberID) {
	i.MemberID = member
	if i.Record != nil {
		i.Record.MemberID = member
	}
}

// Clone returns a deep copy of the entry.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	return &Identity{
		MemberID: i.MemberID,
		Legacy:   i.Legacy,
		Record:   i.Record.Clone(),
	}
}

// MarshalJSON keeps the legacy wire form: a bare JSON string for unmigrated
// entries, an object for structured records.
func (i Identity) MarshalJSON() ([]byte, error) {
	if i.IsLegacy() {
		return json.Marshal(string(i.Legacy))
	}
	return json.Marshal(i.Record)
}

// UnmarshalJSON accepts both wire forms. The MemberID is not part of the
// stored value; storage backends fill it in from the key.
func (i *Identity) UnmarshalJSON(data []byte) error {
	var legacy string
	if err := json.Unmarshal(data, &legacy); err == nil {
		i.Legacy = PseudonymID(legacy)
		i.Record = nil
		return nil
	}
	var rec IdentityRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	i.Legacy = ""
	i.Record = &rec
	return nil
}

// PseudonymSet tracks which pseudonym ids are already in use across the
// whole identity table. Generation collision checks run against it inside
// the same storage transaction that persists the new record.
type PseudonymSet map[PseudonymID]struct{}

// Contains reports whether id is taken.
func (s PseudonymSet) Contains(id PseudonymID) bool {
	_, ok := s[id]
	return ok
}

// Add records id as taken.
func (s PseudonymSet) Add(id PseudonymID) {
	s[id] = struct{}{}
}
