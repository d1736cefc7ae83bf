package contract

import "time"

type Status string

const (
	StatusOffen             Status = "offen"
	StatusBeantragt         Status = "beantragt"
	StatusAbgeschlossen     Status = "abgeschlossen"
	StatusProvisionErhalten Status = "provision_erhalten"
)

type Source string

const (
	SourceManual Source = "manual"
	SourceXempus Source = "xempus"
)

// Contract is an internal insurance contract. BeraterID is the source of
// truth for advisor assignment; BeraterName is the free-text fallback used
// until the name has been resolved against the mapping table.
type Contract struct {
	ID                            uint
	VSNR                          string
	VSNRNormalized                string
	VSNRAlt                       string
	VSNRAltNormalized             string
	Versicherungsnehmer           string
	VersicherungsnehmerNormalized string
	BeraterID                     *uint
	BeraterName                   string
	Status                        Status
	Source                        Source
	XempusID                      string
	CreatedAt                     time.Time
	UpdatedAt                     time.Time
}

// StatusAdvancesOnCommission reports whether a positive matched commission
// moves this contract to provision_erhalten.
func (c *Contract) StatusAdvancesOnCommission() bool {
	switch c.Status {
	case StatusOffen, StatusBeantragt, StatusAbgeschlossen:
		return true
	}
	return false
}
