package models

import "time"

// Action is the direction of a hardware movement against a project.
type Action string

const (
	ActionCheckin  Action = "checkin"
	ActionCheckout Action = "checkout"
)

// ValidActions is the set of allowed action values.
var ValidActions = map[Action]bool{
	ActionCheckin:  true,
	ActionCheckout: true,
}

// HardwareSet is a pool of identical hardware units owned by the lab.
type HardwareSet struct {
	ID        string    `json:"hardwareid"`
	Name      string    `json:"name"`
	Capacity  int       `json:"capacity"`
	Available int       `json:"available"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Project groups the users allowed to check hardware in and out.
type Project struct {
	ID              string    `json:"projectid"`
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	AuthorizedUsers []string  `json:"authorized_users"`
	CreatedAt       time.Time `json:"created_at"`
}

// Transaction is one applied line of a check-in or check-out.
type Transaction struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"projectid"`
	HardwareID string    `json:"hardwareid"`
	Action     Action    `json:"action"`
	Quantity   int       `json:"quantity"`
	UserID     string    `json:"userid"`
	CreatedAt  time.Time `json:"created_at"`
}

// Unit is one hardware set as seen from a project: capacity and availability
// of the pool, the quantity the project holds, and the user's pending request.
type Unit struct {
	HardwareID string `json:"hardwareid"`
	Capacity   int    `json:"capacity"`
	Available  int    `json:"available"`
	CheckedOut int    `json:"checked_out"`
	Requested  int    `json:"requested"`
}

// Snapshot is a project's inventory state as last reported by the inventory
// service. Units keep the order the service reported them in.
type Snapshot struct {
	ProjectID string `json:"projectid"`
	Units     []Unit `json:"units"`
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	units := make([]Unit, len(s.Units))
	copy(units, s.Units)
	return Snapshot{ProjectID: s.ProjectID, Units: units}
}

// Index returns the position of the unit with the given hardware id, or -1.
func (s Snapshot) Index(hardwareID string) int {
	for i, u := range s.Units {
		if u.HardwareID == hardwareID {
			return i
		}
	}
	return -1
}

// InventoryEntry is a hardware set as reported by the projectstatus endpoint.
type InventoryEntry struct {
	HardwareID string `json:"hardwareid"`
	Capacity   int    `json:"capacity"`
	Available  int    `json:"available"`
}

// ProjectStatus is the payload of a projectstatus response and of a
// successful checkincheckout response.
type ProjectStatus struct {
	ProjectID  string           `json:"projectid"`
	CheckedOut []int            `json:"checkedOut"`
	Inventory  []InventoryEntry `json:"inventory,omitempty"`
}

// Envelope is the body shape of every /shecodes/inventory response.
type Envelope struct {
	Message  string         `json:"message"`
	Response *ProjectStatus `json:"response,omitempty"`
}

// RequestItem is one line of a checkincheckout request.
type RequestItem struct {
	HardwareID string `json:"hardwareid"`
	Quantity   int    `json:"quantity"`
}

// CheckRequest is the body of a checkincheckout request.
type CheckRequest struct {
	ProjectID string        `json:"projectid"`
	UserID    string        `json:"userid"`
	Inventory []RequestItem `json:"inventory"`
	Action    Action        `json:"action"`
}
