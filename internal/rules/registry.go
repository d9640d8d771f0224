// internal/rules/registry.go
package rules

import (
	"fmt"
	"sort"

	"github.com/xeipuuv/gojsonschema"

	"agrimarket-onboarding/internal/models"
)

// Rules describes what one application type requires at submission time.
type Rules struct {
	Type              models.ApplicationType
	RequiredDocuments []string
	schema            *gojsonschema.Schema
}

// Registry maps application types to their submission rules. The zero value
// is unusable; construct with NewRegistry.
type Registry struct {
	rules map[models.ApplicationType]*Rules
}

const farmerProfileSchema = `{
	"type": "object",
	"properties": {
		"farmName":     {"type": "string", "minLength": 2, "maxLength": 120},
		"farmSize":     {"type": "number", "exclusiveMinimum": 0},
		"farmLocation": {"type": "string", "minLength": 2, "maxLength": 200},
		"crops": {
			"type": "array",
			"items": {"type": "string", "minLength": 1},
			"minItems": 1
		}
	},
	"required": ["farmName", "farmSize", "farmLocation", "crops"],
	"additionalProperties": true
}`

const deliveryAgentProfileSchema = `{
	"type": "object",
	"properties": {
		"businessName":  {"type": "string", "minLength": 2, "maxLength": 120},
		"vehicleType":   {"type": "string", "enum": ["bicycle", "motorbike", "car", "van", "truck"]},
		"licenseNumber": {"type": "string", "minLength": 4, "maxLength": 40},
		"serviceAreas": {
			"type": "array",
			"items": {"type": "string", "minLength": 1},
			"minItems": 1
		}
	},
	"required": ["businessName", "vehicleType", "licenseNumber", "serviceAreas"],
	"additionalProperties": true
}`

var requiredDocuments = map[models.ApplicationType][]string{
	models.TypeFarmer: {
		"national_id",
		"profile_photo",
		"farm_license",
		"land_ownership",
	},
	models.TypeDeliveryAgent: {
		"national_id",
		"profile_photo",
		"driving_license",
		"vehicle_registration",
	},
}

// NewRegistry compiles the per-type schemas. Schema compilation failures are
// programming errors and surface at startup.
func NewRegistry() (*Registry, error) {
	schemas := map[models.ApplicationType]string{
		models.TypeFarmer:        farmerProfileSchema,
		models.TypeDeliveryAgent: deliveryAgentProfileSchema,
	}

	r := &Registry{rules: make(map[models.ApplicationType]*Rules)}
	for appType, raw := range schemas {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(raw))
		if err != nil {
			return nil, fmt.Errorf("compiling %s profile schema: %w", appType, err)
		}
		r.rules[appType] = &Rules{
			Type:              appType,
			RequiredDocuments: requiredDocuments[appType],
			schema:            schema,
		}
	}
	return r, nil
}

// Lookup returns the rules for an application type, or false when the type is
// not registered.
func (r *Registry) Lookup(t models.ApplicationType) (*Rules, bool) {
	rules, ok := r.rules[t]
	return rules, ok
}

// Types lists the registered application types in stable order.
func (r *Registry) Types() []models.ApplicationType {
	out := make([]models.ApplicationType, 0, len(r.rules))
	for t := range r.rules {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ValidateProfile checks the type-specific payload against the schema and
// returns every violation, not just the first.
func (ru *Rules) ValidateProfile(profile map[string]interface{}) []string {
	result, err := ru.schema.Validate(gojsonschema.NewGoLoader(profile))
	if err != nil {
		return []string{fmt.Sprintf("profile is not a valid document: %v", err)}
	}
	if result.Valid() {
		return nil
	}
	violations := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		violations = append(violations, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
	}
	sort.Strings(violations)
	return violations
}

// MissingDocuments returns the required document types absent from the
// submitted set, in declaration order.
func (ru *Rules) MissingDocuments(docs []models.Document) []string {
	present := make(map[string]bool, len(docs))
	for _, d := range docs {
		present[d.Type] = true
	}
	var missing []string
	for _, required := range ru.RequiredDocuments {
		if !present[required] {
			missing = append(missing, required)
		}
	}
	return missing
}
