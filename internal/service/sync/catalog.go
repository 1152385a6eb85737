package sync

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"

	log "github.com/InjectiveLabs/suplog"

	"github.com/InjectiveLabs/oracle-aggregator/oracle"
	"github.com/InjectiveLabs/oracle-aggregator/persistence"
)

// Catalog discovers enabled instances for SyncOrchestrator.StartAll, per
// spec §4.5 "query instances WHERE enabled".
type Catalog interface {
	EnabledInstances(ctx context.Context) ([]persistence.Instance, error)
}

type gatewayCatalog struct {
	gw persistence.Gateway
}

func NewCatalog(gw persistence.Gateway) Catalog {
	return &gatewayCatalog{gw: gw}
}

func (c *gatewayCatalog) EnabledInstances(ctx context.Context) ([]persistence.Instance, error) {
	return c.gw.ListEnabledInstances(ctx)
}

// instanceFile is the TOML shape of one file under the instances
// directory: one file per SyncInstance, following the teacher's dynamic
// feed config directory convention.
type instanceFile struct {
	InstanceID     string                 `toml:"instance_id"`
	Protocol       string                 `toml:"protocol"`
	Chain          string                 `toml:"chain"`
	Enabled        bool                   `toml:"enabled"`
	RPCURL         string                 `toml:"rpc_url"`
	SyncIntervalMs uint32                 `toml:"sync_interval_ms"`
	ProtocolConfig map[string]interface{} `toml:"protocol_config"`
}

// tomlCatalog discovers enabled instances from a directory of TOML files,
// an alternative to the database-backed gatewayCatalog for local/dev
// deployments that bootstrap instances from config rather than a DB row.
type tomlCatalog struct {
	dir    string
	logger log.Logger
}

// NewTOMLCatalog builds a Catalog that walks dir for *.toml instance
// config files, per the teacher's filepath.WalkDir + go-toml/v2 pattern.
func NewTOMLCatalog(dir string) Catalog {
	return &tomlCatalog{dir: dir, logger: log.WithFields(log.Fields{"svc": "instance_catalog"})}
}

func (c *tomlCatalog) EnabledInstances(ctx context.Context) ([]persistence.Instance, error) {
	var out []persistence.Instance

	err := filepath.WalkDir(c.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		} else if d.IsDir() {
			return nil
		} else if filepath.Ext(path) != ".toml" {
			return nil
		}

		body, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrapf(err, "failed to read instance config %s", path)
		}

		var f instanceFile
		if err := toml.Unmarshal(body, &f); err != nil {
			c.logger.WithError(err).WithField("filename", d.Name()).Errorln("failed to parse instance config")
			return nil
		}
		if !f.Enabled {
			return nil
		}

		out = append(out, persistence.Instance{
			InstanceID:     f.InstanceID,
			Protocol:       oracle.Protocol(f.Protocol),
			Chain:          f.Chain,
			Enabled:        f.Enabled,
			RPCURL:         f.RPCURL,
			ProtocolConfig: f.ProtocolConfig,
			SyncIntervalMs: f.SyncIntervalMs,
		})
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "instances dir is specified, but failed to read from it: %s", c.dir)
	}

	c.logger.Infof("found %d enabled instance configs", len(out))
	return out, nil
}

// clientConfig builds an oracle.ClientConfig from an Instance row, pulling
// the RPC/HTTP endpoint and protocol-specific overrides, per spec §3
// Instance ("config schema varies by protocol").
func clientConfig(inst persistence.Instance) oracle.ClientConfig {
	cfg := oracle.ClientConfig{
		Chain:          inst.Chain,
		RPCURL:         inst.RPCURL,
		ProtocolConfig: inst.ProtocolConfig,
	}
	if cfg.RPCURL == "" {
		if v, ok := inst.ProtocolConfig["rpc_url"].(string); ok {
			cfg.RPCURL = v
		} else if v, ok := inst.ProtocolConfig["endpoint"].(string); ok {
			cfg.RPCURL = v
		}
	}
	return cfg
}
