package provider

import (
	"strings"

	"github.com/chunga-ict/hfprovider/kernel/model"
)

// capacitySplit divides count into on-demand and spot capacity for a template.
func capacitySplit(tmpl *model.ProviderTemplate, count int) (onDemand, spot int) {
	switch tmpl.EffectivePriceType() {
	case model.PriceTypeSpot:
		return 0, count
	case model.PriceTypeHeterogeneous:
		onDemand = count * tmpl.PercentOnDemand / 100
		return onDemand, count - onDemand
	default:
		return count, 0
	}
}

// fleetAllocationStrategy maps a template strategy onto the EC2 Fleet
// vocabulary (lowest-price, capacity-optimized, ...).
func fleetAllocationStrategy(s string) string {
	switch strings.ToLower(strings.ReplaceAll(s, "-", "")) {
	case "", "lowestprice":
		return "lowest-price"
	case "diversified":
		return "diversified"
	case "capacityoptimized":
		return "capacity-optimized"
	case "capacityoptimizedprioritized":
		return "capacity-optimized-prioritized"
	case "pricecapacityoptimized":
		return "price-capacity-optimized"
	default:
		return s
	}
}

// spotFleetAllocationStrategy maps a template strategy onto the Spot Fleet
// vocabulary (lowestPrice, capacityOptimized, ...).
func spotFleetAllocationStrategy(s string) string {
	switch fleetAllocationStrategy(s) {
	case "lowest-price":
		return "lowestPrice"
	case "capacity-optimized":
		return "capacityOptimized"
	case "capacity-optimized-prioritized":
		return "capacityOptimizedPrioritized"
	case "price-capacity-optimized":
		return "priceCapacityOptimized"
	default:
		return s
	}
}

func reduceCapacity(current int64, by int) int64 {
	next := current - int64(by)
	if next < 0 {
		return 0
	}
	return next
}

func resourceName(req *model.Request) string {
	return "hf-" + req.RequestId
}
