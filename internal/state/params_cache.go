package state

import (
	"context"
	"encoding/base64"
	"fmt"

	"pci-pair-trader/internal/pci"

	"github.com/vmihailenco/msgpack/v5"
)

const ParamsKeyPrefix = "params:"

type paramsRecord struct {
	Beta             float64 `msgpack:"beta"`
	Rho              float64 `msgpack:"rho"`
	SigmaM           float64 `msgpack:"sigma_m"`
	SigmaR           float64 `msgpack:"sigma_r"`
	R2MR             float64 `msgpack:"r2_mr"`
	LRScore          float64 `msgpack:"lr_score"`
	LogLikRestricted float64 `msgpack:"ll_restricted"`
	LogLikFull       float64 `msgpack:"ll_full"`
	Observations     int     `msgpack:"n"`
}

// ParamsCache keeps fitted model parameters in a Store, msgpack encoded.
type ParamsCache struct {
	store Store
}

func NewParamsCache(store Store) *ParamsCache {
	return &ParamsCache{store: store}
}

func (c *ParamsCache) Load(ctx context.Context, key string) (pci.ModelParameters, bool, error) {
	if c == nil || c.store == nil {
		return pci.ModelParameters{}, false, nil
	}
	raw, ok, err := c.store.Get(ctx, ParamsKeyPrefix+key)
	if err != nil || !ok {
		return pci.ModelParameters{}, false, err
	}
	payload, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return pci.ModelParameters{}, false, fmt.Errorf("decode cached params %s: %w", key, err)
	}
	var rec paramsRecord
	if err := msgpack.Unmarshal(payload, &rec); err != nil {
		return pci.ModelParameters{}, false, fmt.Errorf("unmarshal cached params %s: %w", key, err)
	}
	return pci.ModelParameters{
		Beta:             rec.Beta,
		Rho:              rec.Rho,
		SigmaM:           rec.SigmaM,
		SigmaR:           rec.SigmaR,
		R2MR:             rec.R2MR,
		LRScore:          rec.LRScore,
		LogLikRestricted: rec.LogLikRestricted,
		LogLikFull:       rec.LogLikFull,
		Observations:     rec.Observations,
	}, true, nil
}

func (c *ParamsCache) Save(ctx context.Context, key string, params pci.ModelParameters) error {
	if c == nil || c.store == nil {
		return nil
	}
	payload, err := msgpack.Marshal(paramsRecord{
		Beta:             params.Beta,
		Rho:              params.Rho,
		SigmaM:           params.SigmaM,
		SigmaR:           params.SigmaR,
		R2MR:             params.R2MR,
		LRScore:          params.LRScore,
		LogLikRestricted: params.LogLikRestricted,
		LogLikFull:       params.LogLikFull,
		Observations:     params.Observations,
	})
	if err != nil {
		return err
	}
	return c.store.Set(ctx, ParamsKeyPrefix+key, base64.StdEncoding.EncodeToString(payload))
}
