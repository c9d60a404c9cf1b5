package models

// EventFields is the raw field bag every conversion endpoint accepts: PII
// fields that get hashed, Meta identifiers that pass through verbatim, and
// the container id the event is routed by.
type EventFields struct {
	GtmContainerID string `json:"gtm_container_id"`
	TestEventCode  string `json:"test_event_code,omitempty"`

	// Hashed before transmission
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	FirstName  string `json:"fn,omitempty"`
	LastName   string `json:"ln,omitempty"`
	Gender     string `json:"ge,omitempty"`
	Birthday   string `json:"db,omitempty"`
	City       string `json:"ct,omitempty"`
	State      string `json:"st,omitempty"`
	Zip        string `json:"zp,omitempty"`
	Country    string `json:"country,omitempty"`
	ExternalID string `json:"external_id,omitempty"`

	// Sent as-is
	ClientIPAddress string `json:"client_ip_address,omitempty"`
	ClientUserAgent string `json:"client_user_agent,omitempty"`
	Fbc             string `json:"fbc,omitempty"`
	Fbp             string `json:"fbp,omitempty"`
}

// EventReceiver is the inbound JSON body of the event endpoints. The
// event-specific fields are picked into custom_data per endpoint; unused
// ones are simply ignored for that event type.
type EventReceiver struct {
	EventFields

	Value              *float64      `json:"value,omitempty"`
	Currency           string        `json:"currency,omitempty"`
	ContentIDs         []string      `json:"content_ids,omitempty"`
	Contents           []interface{} `json:"contents,omitempty"`
	ContentType        string        `json:"content_type,omitempty"`
	OrderID            string        `json:"order_id,omitempty"`
	FormID             string        `json:"form_id,omitempty"`
	LeadType           string        `json:"lead_type,omitempty"`
	RegistrationMethod string        `json:"registration_method,omitempty"`
	ContactMethod      string        `json:"contact_method,omitempty"`
	SearchString       string        `json:"search_string,omitempty"`
	PredictedLTV       *float64      `json:"predicted_ltv,omitempty"`
	DeliveryCategory   string        `json:"delivery_category,omitempty"`
}
