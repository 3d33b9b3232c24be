package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type client struct {
	BaseURL   string
	APIKey    string
	OutFormat string // "json" | "text"
	HTTP      *http.Client
}

func (c *client) do(method, path string, body []byte) (int, []byte, error) {
	url := strings.TrimRight(c.BaseURL, "/") + path
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("X-API-Key", c.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, b, nil
}

func (c *client) print(status int, body []byte) {
	if c.OutFormat == "json" {
		var v any
		if json.Unmarshal(body, &v) == nil {
			p, _ := json.MarshalIndent(v, "", "  ")
			fmt.Println(string(p))
			return
		}
	}
	if len(body) > 0 {
		fmt.Println(string(body))
	} else {
		fmt.Printf("status=%d\n", status)
	}
}

// postJSON arma el body, pega al endpoint y falla si el status no es 2xx.
func (c *client) postJSON(path string, payload any) error {
	var b []byte
	if payload != nil {
		b, _ = json.Marshal(payload)
	}
	status, body, err := c.do("POST", path, b)
	if err != nil {
		return err
	}
	if status/100 != 2 {
		return fmt.Errorf("fallo: status=%d body=%s", status, string(body))
	}
	c.print(status, body)
	return nil
}

func main() {
	var (
		baseURL = envOr("TICKETGATE_ADMIN_URL", "http://localhost:8085")
		apiKey  = envOr("TICKETGATE_ADMIN_KEY", "")
		out     = envOr("TICKETGATE_OUT", "text")
		timeout = 30 * time.Second
	)

	cl := &client{HTTP: &http.Client{Timeout: timeout}}

	root := &cobra.Command{
		Use:   "umactl",
		Short: "CLI admin para ticketgate (vía /admin)",
		// Los flags se parsean recién acá, así que el client se arma en el hook.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if apiKey == "" && cmd.Name() != "ping" {
				return fmt.Errorf("falta API key (flag --admin-api-key o env TICKETGATE_ADMIN_KEY)")
			}
			cl.BaseURL, cl.APIKey, cl.OutFormat = baseURL, apiKey, out
			return nil
		},
	}
	root.PersistentFlags().StringVar(&baseURL, "admin-api-url", baseURL, "URL base del Admin API (env TICKETGATE_ADMIN_URL)")
	root.PersistentFlags().StringVar(&apiKey, "admin-api-key", apiKey, "API key del Admin API (env TICKETGATE_ADMIN_KEY)")
	root.PersistentFlags().StringVar(&out, "out", out, "Formato de salida: json|text")

	// ping: /healthz es público, no pasa por la API key.
	pingCmd := &cobra.Command{
		Use:   "ping",
		Short: "Health check del servicio",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := cl.do("GET", "/healthz", nil)
			if err != nil {
				return err
			}
			if status/100 != 2 {
				return fmt.Errorf("ping fallo: status=%d body=%s", status, string(body))
			}
			cl.print(status, body)
			return nil
		},
	}

	// permissions register
	var regResource string
	var regScopes []string
	registerCmd := &cobra.Command{
		Use:   "register",
		Short: "Registrar un permission y obtener un ticket",
		RunE: func(cmd *cobra.Command, args []string) error {
			if regResource == "" {
				return fmt.Errorf("--resource es requerido")
			}
			return cl.postJSON("/admin/permissions", []map[string]any{{
				"resource_id":     regResource,
				"resource_scopes": regScopes,
			}})
		},
	}
	registerCmd.Flags().StringVar(&regResource, "resource", "", "ID del resource")
	registerCmd.Flags().StringSliceVar(&regScopes, "scope", nil, "Scopes pedidos (repetible)")

	// tickets invalidate
	var invTicket string
	invalidateCmd := &cobra.Command{
		Use:   "invalidate",
		Short: "Invalidar un ticket",
		RunE: func(cmd *cobra.Command, args []string) error {
			if invTicket == "" {
				return fmt.Errorf("--ticket es requerido")
			}
			return cl.postJSON("/admin/tickets/invalidate", map[string]string{"ticket": invTicket})
		},
	}
	invalidateCmd.Flags().StringVar(&invTicket, "ticket", "", "Ticket a invalidar")

	// pct revoke / rpt revoke
	var revokeCode string
	revokePCTCmd := &cobra.Command{
		Use:   "revoke-pct",
		Short: "Revocar un PCT",
		RunE: func(cmd *cobra.Command, args []string) error {
			if revokeCode == "" {
				return fmt.Errorf("--code es requerido")
			}
			return cl.postJSON("/admin/pcts/revoke", map[string]string{"code": revokeCode})
		},
	}
	revokeRPTCmd := &cobra.Command{
		Use:   "revoke-rpt",
		Short: "Revocar un RPT",
		RunE: func(cmd *cobra.Command, args []string) error {
			if revokeCode == "" {
				return fmt.Errorf("--code es requerido")
			}
			return cl.postJSON("/admin/rpts/revoke", map[string]string{"code": revokeCode})
		},
	}
	revokePCTCmd.Flags().StringVar(&revokeCode, "code", "", "Código del token")
	revokeRPTCmd.Flags().StringVar(&revokeCode, "code", "", "Código del token")

	// policies reload
	reloadCmd := &cobra.Command{
		Use:   "reload-policies",
		Short: "Recargar el registry de policies",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cl.postJSON("/admin/policies/reload", nil)
		},
	}

	ticketsCmd := &cobra.Command{Use: "tickets", Short: "Operaciones sobre tickets"}
	ticketsCmd.AddCommand(registerCmd, invalidateCmd)

	tokensCmd := &cobra.Command{Use: "tokens", Short: "Operaciones sobre PCTs y RPTs"}
	tokensCmd.AddCommand(revokePCTCmd, revokeRPTCmd)

	root.AddCommand(pingCmd, ticketsCmd, tokensCmd, reloadCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
