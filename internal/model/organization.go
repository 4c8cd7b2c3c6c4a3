package model

import "github.com/shopspring/decimal"

type Organization struct {
	Address          string
	Name             string
	PhotoHash        string
	Balance          decimal.Decimal
	IsRegistered     bool
	Photo            []byte
	PhotoContentType string
}

func (o Organization) HasPhoto() bool {
	return len(o.Photo) > 0
}
