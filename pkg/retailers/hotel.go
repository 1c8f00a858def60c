package retailers

import (
	"khwaaish/pkg/automation"
	"khwaaish/pkg/flow"
	"khwaaish/pkg/render"
)

var (
	checkInField  = flow.Field{Name: "check_in", Label: "check-in date", Prompt: "Check-in date (YYYY-MM-DD):"}
	checkOutField = flow.Field{Name: "check_out", Label: "check-out date", Prompt: "Check-out date (YYYY-MM-DD):"}
	guestField    = flow.Field{Name: "guest_name", Label: "guest name", Prompt: "Name of the guest:"}
)

func hotelSearch() *flow.Step {
	s := searchStep(":hotel: Tell me where you want to stay.", "City or area:")
	s.Fields = append(s.Fields, checkInField, checkOutField)
	s.Payload = func(req flow.Request) map[string]interface{} {
		payload := automation.SearchPayload(req.SessionID, req.Fields["query"], req.Limit)
		payload["location"] = req.Fields["query"]
		payload["check_in"] = req.Fields["check_in"]
		payload["check_out"] = req.Fields["check_out"]
		return payload
	}
	return s
}

// bookStep books the first selected hotel.
func bookStep(fields ...flow.Field) *flow.Step {
	return &flow.Step{
		Name:      "cart",
		Kind:      flow.KindCart,
		Prompt:    ":hotel: Pick a hotel with /add <number>, then /confirm to book.",
		Fields:    fields,
		Operation: automation.OpBook,
		Back:      "search",
		Accept:    flow.RequireSuccess,
		Terminal:  true,
		Success:   render.KindBookingSuccess,
		Payload: func(req flow.Request) map[string]interface{} {
			payload := map[string]interface{}{
				"check_in":  req.Fields["check_in"],
				"check_out": req.Fields["check_out"],
			}
			for _, f := range fields {
				payload[f.Name] = req.Fields[f.Name]
			}
			if len(req.Lines) > 0 {
				hotel := req.Lines[0].Product
				payload["hotel_name"] = hotel.Name
				payload["hotel_index"] = hotel.Index
				if hotel.URL != "" {
					payload["hotel_url"] = hotel.URL
				}
				payload["rooms"] = req.Lines[0].Quantity
			}
			return payload
		},
	}
}

func oyo() *flow.Definition {
	login := loginStep(phoneField)
	return &flow.Definition{
		Name:      "oyo",
		Label:     "OYO",
		Category:  "hotel",
		Retailers: []string{"oyo"},
		Initial:   "login",
		Greeting:  ":hotel: Book an OYO stay.",
		Steps:     []*flow.Step{login, otpStep(), hotelSearch(), bookStep(guestField, upiField)},
	}
}

func bookingcom() *flow.Definition {
	email := flow.Field{Name: "email", Label: "email", Prompt: "Email for the booking confirmation:"}
	return &flow.Definition{
		Name:      "bookingcom",
		Label:     "Booking.com",
		Category:  "hotel",
		Retailers: []string{"bookingcom"},
		Initial:   "search",
		Greeting:  ":hotel: Find a stay on Booking.com.",
		Steps:     []*flow.Step{hotelSearch(), bookStep(guestField, email, phoneField, upiField)},
	}
}
