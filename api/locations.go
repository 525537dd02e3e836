package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"gorm.io/gorm"

	"furima/models"
)

const autocompleteLocationLimit = 30

// List locations
// (GET /api/locations?level=N)
func (impl *ServerImpl) ListLocations(c *gin.Context) {
	const op = "ListLocations"
	level := c.DefaultQuery("level", "1")
	var locations []models.Location
	if result := impl.db.Where("level = ?", level).Order("id").Find(&locations); result.Error != nil {
		serverError(c, fmt.Errorf("[%s] Fail to list locations, err=%w", op, result.Error))
		return
	}
	c.JSON(http.StatusOK, lo.Map(locations, func(location models.Location, _ int) locationPayload { return newLocationPayload(location) }))
}

// List root locations
// (GET /api/locations/root)
func (impl *ServerImpl) RootLocations(c *gin.Context) {
	const op = "RootLocations"
	var locations []models.Location
	if result := impl.db.Where("level = 1").Order("id").Find(&locations); result.Error != nil {
		serverError(c, fmt.Errorf("[%s] Fail to list root locations, err=%w", op, result.Error))
		return
	}
	c.JSON(http.StatusOK, lo.Map(locations, func(location models.Location, _ int) locationPayload { return newLocationPayload(location) }))
}

// List popular locations for the landing page
// (GET /api/locations/popular)
func (impl *ServerImpl) PopularLocations(c *gin.Context) {
	const op = "PopularLocations"
	if len(impl.config.Site.PopularLocationIDs) == 0 {
		c.JSON(http.StatusOK, []locationPayload{})
		return
	}
	var locations []models.Location
	if result := impl.db.Where("id IN ?", impl.config.Site.PopularLocationIDs).Find(&locations); result.Error != nil {
		serverError(c, fmt.Errorf("[%s] Fail to list popular locations, err=%w", op, result.Error))
		return
	}
	// 依設定檔內的順序輸出
	byID := make(map[int]models.Location, len(locations))
	for _, location := range locations {
		byID[int(location.ID)] = location
	}
	payload := make([]locationPayload, 0, len(locations))
	for _, id := range impl.config.Site.PopularLocationIDs {
		if location, ok := byID[id]; ok {
			payload = append(payload, newLocationPayload(location))
		}
	}
	c.JSON(http.StatusOK, payload)
}

// Autocomplete level-2 locations by name with postcode
// (GET /api/locations/autocomplete?q=...)
func (impl *ServerImpl) AutocompleteLocations(c *gin.Context) {
	const op = "AutocompleteLocations"
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		c.JSON(http.StatusOK, []locationPayload{})
		return
	}
	var locations []models.Location
	result := impl.db.
		Where("level = 2").
		Where(`LOWER(name_with_postcode) LIKE ? ESCAPE '\'`, "%"+models.EscapeLike(strings.ToLower(q))+"%").
		Limit(autocompleteLocationLimit).
		Find(&locations)
	if result.Error != nil {
		serverError(c, fmt.Errorf("[%s] Fail to autocomplete locations, err=%w", op, result.Error))
		return
	}
	c.JSON(http.StatusOK, lo.Map(locations, func(location models.Location, _ int) locationPayload { return newLocationPayload(location) }))
}

// Retrieve a location with its parent and children
// (GET /api/locations/:id)
func (impl *ServerImpl) RetrieveLocation(c *gin.Context) {
	const op = "RetrieveLocation"
	id, ok := pathID(c)
	if !ok {
		return
	}
	var location models.Location
	result := impl.db.Preload("Parent").Preload("Children").First(&location, id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		c.Status(http.StatusNotFound)
		return
	}
	if result.Error != nil {
		serverError(c, fmt.Errorf("[%s] Fail to find location, err=%w", op, result.Error))
		return
	}
	c.JSON(http.StatusOK, retrievedLocationPayload(location))
}

func retrievedLocationPayload(location models.Location) gin.H {
	payload := gin.H{
		"id":                 location.ID,
		"name":               location.Name,
		"name_with_postcode": location.NameWithPostcode,
		"state_code":         location.StateCode,
		"state":              location.State,
		"level":              location.Level,
		"parent":             nil,
		"children":           lo.Map(location.Children, func(child models.Location, _ int) locationPayload { return newLocationPayload(child) }),
	}
	if location.Parent != nil {
		payload["parent"] = newLocationPayload(*location.Parent)
	}
	return payload
}

// Build the location selector payload for the search page
// (GET /api/locations/set?selected_id=N)
func (impl *ServerImpl) LocationSet(c *gin.Context) {
	const op = "LocationSet"
	data := gin.H{
		"selected":   nil,
		"l1_value":   "",
		"l2_value":   "",
		"l1_options": []locationPayload{},
		"l2_options": []locationPayload{},
	}

	var l1Locations []models.Location
	if result := impl.db.Where("level = 1").Order("id").Find(&l1Locations); result.Error != nil {
		serverError(c, fmt.Errorf("[%s] Fail to list root locations, err=%w", op, result.Error))
		return
	}
	data["l1_options"] = lo.Map(l1Locations, func(location models.Location, _ int) locationPayload { return newLocationPayload(location) })

	if selectedID, err := strconv.Atoi(c.Query("selected_id")); err == nil {
		var selected models.Location
		result := impl.db.Preload("Parent").Preload("Children").First(&selected, selectedID)
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			c.Status(http.StatusNotFound)
			return
		}
		if result.Error != nil {
			serverError(c, fmt.Errorf("[%s] Fail to find selected location, err=%w", op, result.Error))
			return
		}

		data["selected"] = retrievedLocationPayload(selected)
		switch selected.Level {
		case 1:
			data["l1_value"] = selected.ID
			data["l2_options"] = lo.Map(selected.Children, func(child models.Location, _ int) locationPayload { return newLocationPayload(child) })
		case 2:
			var siblings []models.Location
			if result := impl.db.Where("parent_id = ?", selected.ParentID).Order("id").Find(&siblings); result.Error != nil {
				serverError(c, fmt.Errorf("[%s] Fail to list sibling locations, err=%w", op, result.Error))
				return
			}
			data["l1_value"] = selected.ParentID
			data["l2_value"] = selected.ID
			data["l2_options"] = lo.Map(siblings, func(sibling models.Location, _ int) locationPayload { return newLocationPayload(sibling) })
		}
	}

	c.JSON(http.StatusOK, data)
}
