package browser

// SiteProfile holds the selectors for one rental search site
type SiteProfile struct {
	Name     string `mapstructure:"name"`
	StartURL string `mapstructure:"start_url"`

	SearchForm       string `mapstructure:"search_form"`
	LocationInput    string `mapstructure:"location_input"`
	DateField        string `mapstructure:"date_field"`
	CalendarPanel    string `mapstructure:"calendar_panel"`
	CalendarDay      string `mapstructure:"calendar_day"`
	ApplyDatesText   string `mapstructure:"apply_dates_text"`
	SearchButtonText string `mapstructure:"search_button_text"`

	ResultsList   string   `mapstructure:"results_list"`
	Card          string   `mapstructure:"card"`
	CardName      []string `mapstructure:"card_name"`
	CardPrice     []string `mapstructure:"card_price"`
	CardCompany   []string `mapstructure:"card_company"`
	DetailControl string   `mapstructure:"detail_control"`
	NextPage      string   `mapstructure:"next_page"`
	// BoundaryMargin is how close to the bottom, in pixels, counts as the end
	BoundaryMargin int `mapstructure:"boundary_margin"`

	PriceBreakdown   string `mapstructure:"price_breakdown"`
	BreakdownSection string `mapstructure:"breakdown_section"`
	BreakdownExtra   string `mapstructure:"breakdown_extra"`
	BreakdownTitle   string `mapstructure:"breakdown_title"`
	PriceText        string `mapstructure:"price_text"`
}

// DefaultProfile targets DiscoveryCars
func DefaultProfile() SiteProfile {
	return SiteProfile{
		Name:     "discoverycars",
		StartURL: "https://www.discoverycars.com/",

		SearchForm:       "form.SearchModifier-Form",
		LocationInput:    `.SearchModifierLocation-Input input, input[name="address"], input[placeholder*="location" i]`,
		DateField:        `.DatePicker-CalendarField, [class*="CalendarField" i]`,
		CalendarPanel:    ".rdrDateRangeWrapper, .rdrDateRangePickerWrapper, .rdrMonths",
		CalendarDay:      ".rdrDay:not(.rdrDayPassive):not(.rdrDayDisabled) .rdrDayNumber span",
		ApplyDatesText:   `select\s*dates?`,
		SearchButtonText: `search\s*now`,

		ResultsList:    `[data-test-id="virtuoso-list"], .SearchList-Wrapper, .SearchCar-Wrapper`,
		Card:           ".SearchCar-Wrapper",
		CardName:       []string{".SearchCar-CarName h4", ".CarTitle-Name", ".SearchCar-CarName", `[class*="CarName"]`},
		CardPrice:      []string{".SearchCar-Price", ".SearchCar-Price strong", ".Price-Value"},
		CardCompany:    []string{".SearchCar-SupplierName", ".SupplierName", `[class*="Supplier" i]`},
		DetailControl:  `.SearchCar-CtaBtn, a[href*="/offer/"]`,
		NextPage:       "button.Pagination-NavigationButton_next",
		BoundaryMargin: 100,

		PriceBreakdown:   ".OfferPriceBreakdown",
		BreakdownSection: ".OfferPriceBreakdown-Main",
		BreakdownExtra:   ".OfferPriceBreakdown-Extra",
		BreakdownTitle:   ".OfferPriceBreakdown-ExtraTitle",
		PriceText:        ".Typography-size_2sm",
	}
}
