package geofence

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"hazard-service/internal/domain/hazard"
	"hazard-service/internal/geo"
)

const DefaultRadiusMeters = 1000.0

type ZoneType string

const (
	ZoneCity    ZoneType = "city"
	ZoneHighway ZoneType = "highway"
	ZoneCustom  ZoneType = "custom"
)

func (t ZoneType) Valid() bool {
	return t == ZoneCity || t == ZoneHighway || t == ZoneCustom
}

// Zone is a circular broadcast area.
type Zone struct {
	ID           string          `json:"id" yaml:"id"`
	Name         string          `json:"name" yaml:"name"`
	Type         ZoneType        `json:"zone_type" yaml:"zone_type"`
	Center       hazard.Location `json:"center" yaml:"center"`
	RadiusMeters float64         `json:"radius_meters" yaml:"radius_meters"`
	Active       bool            `json:"is_active" yaml:"-"`
	Description  string          `json:"description,omitempty" yaml:"description"`
	CreatedAt    time.Time       `json:"created_at" yaml:"-"`
}

type SubscriptionKind string

const (
	SubscribeAll      SubscriptionKind = "all"
	SubscribeSpecific SubscriptionKind = "specific_types"
)

// Subscription registers a device for broadcasts in one zone.
type Subscription struct {
	DeviceID    string           `json:"device_id"`
	ZoneID      string           `json:"zone_id"`
	Kind        SubscriptionKind `json:"subscription_type"`
	HazardTypes []hazard.Type    `json:"hazard_types,omitempty"`
	LastSeen    time.Time        `json:"last_seen"`
}

func (s Subscription) Wants(t hazard.Type) bool {
	if s.Kind != SubscribeSpecific {
		return true
	}
	for _, ht := range s.HazardTypes {
		if ht == t {
			return true
		}
	}
	return false
}

// Match is an active zone whose circle contains a point.
type Match struct {
	Zone           Zone    `json:"zone"`
	DistanceMeters float64 `json:"distance_meters"`
}

// Registry holds zones and their device subscriptions in process.
type Registry struct {
	mu    sync.RWMutex
	zones map[string]Zone
	subs  map[string]map[string]Subscription // zone id -> device id
	now   func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		zones: make(map[string]Zone),
		subs:  make(map[string]map[string]Subscription),
		now:   time.Now,
	}
}

// CreateZone validates z, fills defaults and stores it as active.
func (r *Registry) CreateZone(z Zone) (Zone, error) {
	z.Name = strings.TrimSpace(z.Name)
	if z.Name == "" {
		return Zone{}, fmt.Errorf("%w: zone name is required", hazard.ErrInvalidInput)
	}
	if z.Type == "" {
		z.Type = ZoneCustom
	}
	if !z.Type.Valid() {
		return Zone{}, fmt.Errorf("%w: unknown zone type %q", hazard.ErrInvalidInput, z.Type)
	}
	if z.RadiusMeters == 0 {
		z.RadiusMeters = DefaultRadiusMeters
	}
	if z.RadiusMeters < 0 {
		return Zone{}, fmt.Errorf("%w: zone radius must be positive", hazard.ErrInvalidInput)
	}
	center, _, err := hazard.RepairCoordinates(z.Center.Lat, z.Center.Lng, nil)
	if err != nil {
		return Zone{}, err
	}
	z.Center = center
	if z.ID == "" {
		z.ID = uuid.NewString()
	}
	z.Active = true
	z.CreatedAt = r.now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.zones[z.ID]; dup {
		return Zone{}, fmt.Errorf("%w: zone %s already exists", hazard.ErrInvalidInput, z.ID)
	}
	r.zones[z.ID] = z
	return z, nil
}

func (r *Registry) Zone(id string) (Zone, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	z, ok := r.zones[id]
	if !ok {
		return Zone{}, fmt.Errorf("%w: zone %s", hazard.ErrNotFound, id)
	}
	return z, nil
}

// Zones returns zones ordered by name.
func (r *Registry) Zones(activeOnly bool) []Zone {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Zone, 0, len(r.zones))
	for _, z := range r.zones {
		if activeOnly && !z.Active {
			continue
		}
		out = append(out, z)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *Registry) SetActive(id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	z, ok := r.zones[id]
	if !ok {
		return fmt.Errorf("%w: zone %s", hazard.ErrNotFound, id)
	}
	z.Active = active
	r.zones[id] = z
	return nil
}

// DeleteZone removes the zone together with its subscriptions.
func (r *Registry) DeleteZone(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.zones[id]; !ok {
		return fmt.Errorf("%w: zone %s", hazard.ErrNotFound, id)
	}
	delete(r.zones, id)
	delete(r.subs, id)
	return nil
}

// Containing returns the active zones whose circle holds loc, nearest center first.
func (r *Registry) Containing(loc hazard.Location) []Match {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Match
	for _, z := range r.zones {
		if !z.Active {
			continue
		}
		d := geo.DistanceMeters(loc.Lat, loc.Lng, z.Center.Lat, z.Center.Lng)
		if d <= z.RadiusMeters {
			out = append(out, Match{Zone: z, DistanceMeters: d})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceMeters != out[j].DistanceMeters {
			return out[i].DistanceMeters < out[j].DistanceMeters
		}
		return out[i].Zone.ID < out[j].Zone.ID
	})
	return out
}

// Subscribe creates or replaces the device's subscription to a zone.
func (r *Registry) Subscribe(sub Subscription) (Subscription, error) {
	sub.DeviceID = strings.TrimSpace(sub.DeviceID)
	if sub.DeviceID == "" {
		return Subscription{}, fmt.Errorf("%w: device id is required", hazard.ErrInvalidInput)
	}
	if sub.Kind == "" {
		sub.Kind = SubscribeAll
	}
	switch sub.Kind {
	case SubscribeAll:
		sub.HazardTypes = nil
	case SubscribeSpecific:
		types := make([]hazard.Type, 0, len(sub.HazardTypes))
		for _, t := range sub.HazardTypes {
			if nt := hazard.NormalizeType(string(t)); nt != "" {
				types = append(types, nt)
			}
		}
		if len(types) == 0 {
			return Subscription{}, fmt.Errorf("%w: specific_types needs at least one hazard type", hazard.ErrInvalidInput)
		}
		sub.HazardTypes = types
	default:
		return Subscription{}, fmt.Errorf("%w: unknown subscription type %q", hazard.ErrInvalidInput, sub.Kind)
	}
	sub.LastSeen = r.now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.zones[sub.ZoneID]; !ok {
		return Subscription{}, fmt.Errorf("%w: zone %s", hazard.ErrNotFound, sub.ZoneID)
	}
	devices, ok := r.subs[sub.ZoneID]
	if !ok {
		devices = make(map[string]Subscription)
		r.subs[sub.ZoneID] = devices
	}
	devices[sub.DeviceID] = sub
	return sub, nil
}

func (r *Registry) Unsubscribe(zoneID, deviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	devices := r.subs[zoneID]
	if _, ok := devices[deviceID]; !ok {
		return fmt.Errorf("%w: device %s is not subscribed to zone %s", hazard.ErrNotFound, deviceID, zoneID)
	}
	delete(devices, deviceID)
	return nil
}

// Subscribers lists the zone's devices that want events of type t. An empty t
// returns every subscription.
func (r *Registry) Subscribers(zoneID string, t hazard.Type) []Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Subscription, 0, len(r.subs[zoneID]))
	for _, s := range r.subs[zoneID] {
		if t == "" || s.Wants(t) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}
