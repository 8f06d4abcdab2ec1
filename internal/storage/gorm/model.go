package gormstorage

import (
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
)

// FavouriteOwner has one row per identity key. Updates lock it so
// read-modify-write cycles for the same identity serialize across processes.
type FavouriteOwner struct {
	OwnerKey  string `gorm:"primaryKey;size:255"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName overrides the table name
func (*FavouriteOwner) TableName() string {
	return "favourite_owners"
}

// FavouriteRecord is one favourite of one identity.
type FavouriteRecord struct {
	ID        uint   `gorm:"primarykey"`
	OwnerKey  string `gorm:"size:255;not null;uniqueIndex:idx_favourite_owner_geo;index:idx_favourite_owner_ordinal,priority:1"`
	GeoKey    string `gorm:"size:64;not null;uniqueIndex:idx_favourite_owner_geo"`
	Ordinal   int    `gorm:"not null;index:idx_favourite_owner_ordinal,priority:2"`
	MarkerID  string `gorm:"size:64"`
	Name      string `gorm:"size:255"`
	Latitude  float64
	Longitude float64
	// Location is the 3857 point of the favourite
	Location  geom.Point
	Snapshot  datatypes.JSON
	CreatedAt time.Time
}

// TableName overrides the table name
func (*FavouriteRecord) TableName() string {
	return "favourites"
}

// Models lists every table this backend migrates.
var Models = []any{
	&FavouriteOwner{},
	&FavouriteRecord{},
}
