package model

// Address is a free-text postal address. One row may be shared by many users;
// a row no user links to is orphaned and gets deleted by reconciliation.
type Address struct {
	ID          uint   `json:"id" gorm:"primaryKey"`
	UserAddress string `json:"user_address" gorm:"size:200;not null;index"`
}
