package main

import (
	"github.com/spf13/cobra"

	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/catalog"
	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/clientstate"
	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/config"
	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/favorites"
)

// railCmd loads the favorites rail from a running storefront the way the
// shop front does, for checking what a given cart would be shown.
func railCmd() *cobra.Command {
	var (
		apiURL  string
		cartArg []string
		size    int
	)
	cmd := &cobra.Command{
		Use:   "rail",
		Short: "Print the favorites rail for a cart",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ids, err := parseIDs(cartArg)
			if err != nil {
				return err
			}
			state := clientstate.Initial()
			for _, id := range ids {
				state.Items = append(state.Items, clientstate.CartItem{Product: catalog.Product{ID: id}, Quantity: 1})
			}
			rail := favorites.New(favorites.NewHTTPFetcher(firstNonEmpty(apiURL, cfg.APIURL)), clientstate.NewStore(state), favorites.Options{WindowSize: size})
			defer rail.Close()
			if err := rail.Initialize(cmd.Context()); err != nil {
				return err
			}
			st := rail.State()
			cmd.Printf("phase=%s visible=%d pool=%d\n", st.Phase, len(st.Window), len(st.Pool))
			return printProducts(st.Window)
		},
	}
	cmd.Flags().StringVar(&apiURL, "api", "", "storefront base URL (default $STUDIO_API_URL)")
	cmd.Flags().StringSliceVar(&cartArg, "cart", nil, "product ids in the cart")
	cmd.Flags().IntVar(&size, "size", favorites.DefaultWindowSize, "window size")
	return cmd
}
