package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/travelbuddy-ai/buddy-core/core/llms"
)

type getCurrentDateArgs struct{}

type searchFlightsArgs struct {
	Origin        string `json:"origin" jsonschema_description:"IATA code or city name of the departure location"`
	Destination   string `json:"destination" jsonschema_description:"IATA code or city name of the arrival location"`
	DepartureDate string `json:"departure_date" jsonschema_description:"Departure date in YYYY-MM-DD format"`
}

type bookFlightArgs struct {
	JourneyID     string  `json:"journey_id" jsonschema_description:"Journey identifier from a prior flight search"`
	OfferID       string  `json:"offer_id" jsonschema_description:"Offer identifier from a prior flight search"`
	CarrierName   string  `json:"carrier_name"`
	Origin        string  `json:"origin"`
	Destination   string  `json:"destination"`
	DepartureTime string  `json:"departure_time"`
	ArrivalTime   string  `json:"arrival_time"`
	PriceAmount   float64 `json:"price_amount"`
	CurrencyCode  string  `json:"currency_code"`
	CabinClass    string  `json:"cabin_class"`
	PassengerName string  `json:"passenger_name,omitempty"`
}

type searchHotelsArgs struct {
	Destination  string `json:"destination" jsonschema_description:"City to search hotels in"`
	CheckInDate  string `json:"check_in_date" jsonschema_description:"Check-in date in YYYY-MM-DD format"`
	CheckOutDate string `json:"check_out_date" jsonschema_description:"Check-out date in YYYY-MM-DD format"`
}

type bookHotelArgs struct {
	HotelName     string  `json:"hotel_name"`
	HotelAddress  string  `json:"hotel_address"`
	City          string  `json:"city"`
	CheckInDate   string  `json:"check_in_date"`
	CheckOutDate  string  `json:"check_out_date"`
	RoomType      string  `json:"room_type"`
	PricePerNight float64 `json:"price_per_night"`
	TotalPrice    float64 `json:"total_price"`
	CurrencyCode  string  `json:"currency_code"`
	GuestName     string  `json:"guest_name,omitempty"`
	StarRating    int     `json:"star_rating,omitempty"`
}

// TravelTools builds the tool set the agent exposes to the model. Date
// lookups resolve locally; everything else is forwarded to the travel
// backend and registered non-cancellable so an interruption mid-booking
// never abandons a request that may already have side effects.
func TravelTools(client *WebhookClient) []llms.Tool {
	now := time.Now

	return []llms.Tool{
		llms.NewTool("get_current_date",
			"Get today's date. Use this to resolve relative dates like 'next Friday' before searching.",
			func(_ context.Context, _ getCurrentDateArgs) (string, error) {
				return now().Format("2006-01-02"), nil
			},
		),
		llms.NewTool("search_flights",
			"Search for available flights between two locations on a given date.",
			forwarded[searchFlightsArgs](client, "search_flights"),
			llms.WithNonCancellable(),
		),
		llms.NewTool("book_flight",
			"Book a specific flight offer returned by a previous flight search.",
			forwarded[bookFlightArgs](client, "book_flight"),
			llms.WithNonCancellable(),
		),
		llms.NewTool("search_hotels",
			"Search for available hotels in a city for a date range.",
			forwarded[searchHotelsArgs](client, "search_hotels"),
			llms.WithNonCancellable(),
		),
		llms.NewTool("book_hotel",
			"Book a specific hotel returned by a previous hotel search.",
			forwarded[bookHotelArgs](client, "book_hotel"),
			llms.WithNonCancellable(),
		),
	}
}

// forwarded re-serializes the parsed arguments and hands them to the
// backend, keeping the schema validation that NewTool's unmarshal gives us.
func forwarded[T any](client *WebhookClient, name string) func(context.Context, T) (string, error) {
	return func(ctx context.Context, args T) (string, error) {
		arguments, err := json.Marshal(args)
		if err != nil {
			return "", err
		}
		return client.Call(ctx, name, string(arguments))
	}
}
