package models

// DossierCounter holds the last numero sequence issued for a day (YYYYMMDD).
type DossierCounter struct {
	Day     string `gorm:"primaryKey;size:8" json:"day"`
	LastSeq int    `gorm:"not null" json:"last_seq"`
}

func (DossierCounter) TableName() string {
	return "dossier_counters"
}
