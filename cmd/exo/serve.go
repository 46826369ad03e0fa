package main

import (
	"encoding/json"
	"net"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/syssam/exo"
	"github.com/syssam/exo/dialect"
	exosql "github.com/syssam/exo/dialect/sql"
	"github.com/syssam/exo/graphql"
	"github.com/syssam/exo/schema"
)

func serveCmd() *cobra.Command {
	var (
		artifact    string
		databaseURL string
		addr        string
		debugSQL    bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the generated API from a model artifact",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(artifact)
			if err != nil {
				return err
			}
			sys, err := schema.Deserialize(f)
			f.Close()
			if err != nil {
				return err
			}
			drv, err := exosql.Open("postgres", databaseURL)
			if err != nil {
				return err
			}
			defer drv.Close()
			var d dialect.Driver = drv
			if debugSQL {
				d = dialect.Debug(drv)
			}
			d = exosql.NewStatsDriver(d, exosql.WithSlowQueryLog())
			resolver := graphql.NewResolver(sys, d, graphql.WithPlanCache(exo.NewLRUPlanCache(1024)))

			mux := http.NewServeMux()
			mux.HandleFunc("/graphql", func(w http.ResponseWriter, r *http.Request) {
				var payload graphql.Payload
				if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
					http.Error(w, "malformed request body", http.StatusBadRequest)
					return
				}
				reqCtx := graphql.BuildRequestContext(sys, httpProvider{r})
				resp := resolver.Execute(r.Context(), &payload, reqCtx)
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(resp)
			})
			cmd.Printf("listening on %s\n", addr)
			return http.ListenAndServe(addr, mux)
		},
	}
	cmd.Flags().StringVar(&artifact, "artifact", "exo_ir.bin", "model artifact path")
	cmd.Flags().StringVar(&databaseURL, "database", os.Getenv("EXO_POSTGRES_URL"), "database URL")
	cmd.Flags().StringVar(&addr, "addr", ":9876", "listen address")
	cmd.Flags().BoolVar(&debugSQL, "debug-sql", false, "echo executed SQL")
	return cmd
}

// httpProvider adapts an http.Request to the graphql.ContextProvider the
// core consumes. Token verification belongs to the deployment in front of
// this process; claims arrive as trusted headers.
type httpProvider struct {
	r *http.Request
}

func (p httpProvider) JWTClaim(key string) (any, bool) {
	v := p.r.Header.Get("X-Claim-" + strings.ReplaceAll(key, "_", "-"))
	if v == "" {
		return nil, false
	}
	return v, true
}

func (p httpProvider) Header(name string) (string, bool) {
	v := p.r.Header.Get(name)
	return v, v != ""
}

func (p httpProvider) Cookie(name string) (string, bool) {
	c, err := p.r.Cookie(name)
	if err != nil {
		return "", false
	}
	return c.Value, true
}

func (p httpProvider) ClientIP() string {
	host, _, err := net.SplitHostPort(p.r.RemoteAddr)
	if err != nil {
		return p.r.RemoteAddr
	}
	return host
}
