package stock

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sw33tLie/candyvend/internal/utils"
	"github.com/sw33tLie/candyvend/pkg/candy"
	"github.com/sw33tLie/candyvend/pkg/whttp"
	"github.com/tidwall/gjson"
)

// UnknownVendor names the fallback record returned when the vendor lookup fails.
const UnknownVendor = "Unknown Vendor"

// Record is the inventory for one (tier, scope) pair.
type Record struct {
	Tier   Tier
	Floor  int    // 0 for the vendor tier
	Vendor string // vendor tier only
	Counts candy.Counts

	// Degraded is set when the record is a fallback rather than live data.
	Degraded bool
}

// Fallback returns the documented stand-in used when a read fails.
func Fallback(tier Tier, floor int) Record {
	if tier == Vendor {
		return Record{Tier: Vendor, Vendor: UnknownVendor, Degraded: true}
	}
	return Record{Tier: tier, Floor: floor, Counts: candy.Defaults(), Degraded: true}
}

// Repository reads and writes inventory against the remote stock service.
type Repository struct {
	BaseURL string
	Client  *retryablehttp.Client
}

func New(baseURL string, client *retryablehttp.Client) *Repository {
	return &Repository{BaseURL: strings.TrimRight(baseURL, "/"), Client: client}
}

// FetchStock reads the inventory for tier/floor. Transport failures and bad
// payloads never surface as errors: they yield Fallback(tier, floor) with
// Degraded set. The only errors returned are scope validation failures,
// which are detected before any request is made.
func (r *Repository) FetchStock(ctx context.Context, tier Tier, floor int) (Record, error) {
	if err := ValidateFloor(tier, floor); err != nil {
		return Record{}, err
	}

	res, err := whttp.SendHTTPRequest(ctx, &whttp.WHTTPReq{
		Method: http.MethodGet,
		URL:    r.BaseURL + "/api/stock?table_name=" + url.QueryEscape(tier.Table()),
	}, r.Client)
	if err != nil {
		utils.Log.Warnf("Fetching %s stock failed, using fallback: %v", tier, err)
		return Fallback(tier, floor), nil
	}
	if !res.OK() {
		utils.Log.Warnf("Fetching %s stock failed with %s, using fallback", tier, res.Describe())
		return Fallback(tier, floor), nil
	}

	rec, ok := parseStock(res.BodyString, tier, floor)
	if !ok {
		utils.Log.Warnf("Malformed %s stock payload, using fallback", tier)
		return Fallback(tier, floor), nil
	}
	return rec, nil
}

// parseStock normalizes the stock envelope. result may be an array of
// per-floor records or a single record, and counts may be strings or numbers.
func parseStock(body string, tier Tier, floor int) (Record, bool) {
	if !gjson.Valid(body) {
		return Record{}, false
	}
	result := gjson.Get(body, "result")
	if !result.Exists() {
		return Record{}, false
	}

	var records []gjson.Result
	switch {
	case result.IsArray():
		records = result.Array()
	case result.IsObject():
		records = []gjson.Result{result}
	default:
		return Record{}, false
	}
	if len(records) == 0 {
		return Record{}, false
	}

	if tier == Vendor {
		// The vendor tier has a single warehouse; take the first record.
		rec := records[0]
		counts, ok := parseCounts(rec)
		if !ok {
			return Record{}, false
		}
		name := strings.TrimSpace(rec.Get("vendor_name").String())
		if name == "" {
			name = UnknownVendor
		}
		return Record{Tier: Vendor, Vendor: name, Counts: counts}, true
	}

	for _, rec := range records {
		n, err := strconv.Atoi(strings.TrimSpace(rec.Get("floor_number").String()))
		if err != nil || n != floor {
			continue
		}
		counts, ok := parseCounts(rec)
		if !ok {
			return Record{}, false
		}
		return Record{Tier: tier, Floor: floor, Counts: counts}, true
	}
	return Record{}, false
}

// parseCounts reads the five per-type fields. A record missing every field
// is malformed; individual missing or negative fields read as 0.
func parseCounts(rec gjson.Result) (candy.Counts, bool) {
	var counts candy.Counts
	found := 0
	for _, t := range candy.All() {
		v := rec.Get(candy.APIFieldName(t))
		if !v.Exists() {
			continue
		}
		found++
		n, err := strconv.Atoi(strings.TrimSpace(v.String()))
		if err != nil {
			n = int(v.Int())
		}
		counts = counts.With(t, n)
	}
	return counts, found > 0
}

// WriteStockField persists a single count. It fails closed: any validation
// or transport problem is logged and reported as false. There is no retry.
func (r *Repository) WriteStockField(ctx context.Context, tier Tier, floor int, t candy.Type, n int) bool {
	if err := ValidateFloor(tier, floor); err != nil {
		utils.Log.Warnf("Refusing stock write: %v", err)
		return false
	}
	if !t.Valid() || n < 0 {
		utils.Log.Warnf("Refusing stock write of %d for %s", n, t)
		return false
	}

	body, err := json.Marshal(map[string]int{candy.APIFieldName(t): n})
	if err != nil {
		utils.Log.Errorf("Encoding stock write: %v", err)
		return false
	}

	res, err := whttp.SendHTTPRequest(ctx, &whttp.WHTTPReq{
		Method: http.MethodPatch,
		URL:    r.writeURL(tier, floor),
		Body:   body,
	}, r.Client)
	if err != nil {
		utils.Log.Errorf("Writing %s=%d to %s stock failed: %v", candy.APIFieldName(t), n, tier, err)
		return false
	}
	if !res.OK() {
		utils.Log.Errorf("Writing %s=%d to %s stock failed with %s", candy.APIFieldName(t), n, tier, res.Describe())
		return false
	}
	if !gjson.Get(res.BodyString, "result").Bool() {
		utils.Log.Errorf("Stock service rejected %s=%d for %s stock", candy.APIFieldName(t), n, tier)
		return false
	}
	utils.Log.Debugf("Persisted %s=%d to %s stock (floor %d)", candy.APIFieldName(t), n, tier, floor)
	return true
}

func (r *Repository) writeURL(tier Tier, floor int) string {
	if tier.Floored() {
		return fmt.Sprintf("%s/api/stock/%s/%d", r.BaseURL, tier.Table(), floor)
	}
	return fmt.Sprintf("%s/api/stock/%s", r.BaseURL, tier.Table())
}
