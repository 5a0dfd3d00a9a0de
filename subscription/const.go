package subscription

// Status is the custom type to define the current status of a Subscription
type Status string

// Defining the valid statuses of a Subscription.
// active -> cancelled is explicit and one-directional; active -> expired is
// time-driven and applied by the Manager on load and before save.
const (
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Frequency is the custom type for the billing interval
type Frequency string

// Defining the valid billing frequencies
const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

// Currency is the custom type for the billing currency
type Currency string

// Defining the supported currencies
const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
)

// Category is the custom type for the subscription category
type Category string

// Defining the closed set of categories
const (
	CategorySports        Category = "sports"
	CategoryNews          Category = "news"
	CategoryEntertainment Category = "entertainment"
	CategoryLifestyle     Category = "lifestyle"
	CategoryTechnology    Category = "technology"
	CategoryFinance       Category = "finance"
	CategoryPolitics      Category = "politics"
	CategoryOther         Category = "other"
)

var validFrequencies = map[Frequency]bool{
	FrequencyDaily:   true,
	FrequencyWeekly:  true,
	FrequencyMonthly: true,
	FrequencyYearly:  true,
}

var validCurrencies = map[Currency]bool{
	CurrencyUSD: true,
	CurrencyEUR: true,
	CurrencyGBP: true,
}

var validCategories = map[Category]bool{
	CategorySports:        true,
	CategoryNews:          true,
	CategoryEntertainment: true,
	CategoryLifestyle:     true,
	CategoryTechnology:    true,
	CategoryFinance:       true,
	CategoryPolitics:      true,
	CategoryOther:         true,
}

// ReminderOffsets are the number of days before the renewal date at which
// reminders fire, processed largest first (earliest in time first)
var ReminderOffsets = []int{7, 5, 2, 1}
