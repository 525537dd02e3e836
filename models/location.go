package models

import (
	"gorm.io/gorm"
)

// Location 代表地區的樹狀節點
// 與分類相同為階層結構，搜尋時以第一層地區篩選會包含其子地區
type Location struct {
	gorm.Model

	ParentID                 *uint
	Name                     string  `gorm:"type:varchar(255)"`
	NameWithPostcode         string  `gorm:"type:varchar(255)"`
	NameWithPostcodeAndState string  `gorm:"type:varchar(255)"`
	StateCode                string  `gorm:"type:varchar(255)"`
	State                    string  `gorm:"type:varchar(255)"`
	Latitude                 float64 `gorm:"type:numeric(9,6)"`
	Longitude                float64 `gorm:"type:numeric(9,6)"`
	Level                    int     `gorm:"not null;default:1"`

	Parent   *Location  `gorm:"foreignKey:ParentID"`
	Children []Location `gorm:"foreignKey:ParentID"`
}

// Keyword 代表搜尋關鍵字的候選清單
// roman_alphabet 是關鍵字的羅馬拼音，自動補完時以前綴比對使用
type Keyword struct {
	gorm.Model

	Title         string `gorm:"type:varchar(255);not null"`
	RomanAlphabet string `gorm:"type:varchar(255);not null"`
	Confirmed     bool   `gorm:"not null;default:false"`
}
