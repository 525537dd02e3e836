package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/datatypes"

	"furima/models"
)

func housingCategory() *models.Category {
	return &models.Category{
		Name: "Housing",
		FieldAttributes: []models.Attribute{
			{Name: "Rent", Slug: "rent", FieldType: models.FieldTypeInteger, Required: true},
			{Name: "Deposit", Slug: "deposit", FieldType: models.FieldTypeInteger},
			{Name: "Pets allowed", Slug: "pets_allowed", FieldType: models.FieldTypeBoolean},
		},
	}
}

func TestValidateAttributes(t *testing.T) {
	category := housingCategory()

	t.Run("合法的屬性資料", func(t *testing.T) {
		fieldErrors := models.ValidateAttributes(category, datatypes.JSONMap{
			"rent": 1200, "pets_allowed": true,
		})
		assert.Empty(t, fieldErrors)
	})

	t.Run("不在欄位結構內的鍵值", func(t *testing.T) {
		fieldErrors := models.ValidateAttributes(category, datatypes.JSONMap{
			"rent": 1200, "mileage": 10000,
		})
		assert.Contains(t, fieldErrors, "mileage")
	})

	t.Run("缺少必填欄位", func(t *testing.T) {
		fieldErrors := models.ValidateAttributes(category, datatypes.JSONMap{"deposit": 500})
		assert.Contains(t, fieldErrors, "rent")

		fieldErrors = models.ValidateAttributes(category, datatypes.JSONMap{"rent": ""})
		assert.Contains(t, fieldErrors, "rent")
	})
}

func TestPruneAttributes(t *testing.T) {
	category := housingCategory()
	pruned := models.PruneAttributes(category, datatypes.JSONMap{
		"rent":    1200,
		"mileage": 10000,
	})
	assert.Equal(t, datatypes.JSONMap{"rent": 1200}, pruned)
}

func TestDefaultAttributeValue(t *testing.T) {
	tests := []struct {
		name      string
		attribute models.Attribute
		want      any
	}{
		{"布林欄位預設為false", models.Attribute{Slug: "pets_allowed", FieldType: models.FieldTypeBoolean}, false},
		{"多選欄位預設為空清單", models.Attribute{Slug: "features", FieldType: models.FieldTypeMultipleCheckbox}, []any{}},
		{"文字欄位預設為空字串", models.Attribute{Slug: "note", FieldType: models.FieldTypeText}, ""},
		{"rent_type預設為1", models.Attribute{Slug: "rent_type", FieldType: models.FieldTypeRadio}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, models.DefaultAttributeValue(tt.attribute))
		})
	}
}
