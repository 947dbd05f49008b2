package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	refreshSymbol   string
	favoriteUser    int64
	favoritePrices  bool
	favoriteTopSize int
)

var refreshAssetsCmd = &cobra.Command{
	Use:   "refresh-assets",
	Short: "Fetch asset details (market cap, supply, links) and store them",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().RefreshAssets(cmd.Context(), strings.ToUpper(strings.TrimSpace(refreshSymbol)))
	},
}

var favoritesCmd = &cobra.Command{
	Use:   "favorites",
	Short: "Manage the assets a user follows",
}

var favoritesAddCmd = &cobra.Command{
	Use:   "add <symbol>",
	Short: "Follow an asset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().AddFavorite(cmd.Context(), favoriteUser, args[0])
	},
}

var favoritesRemoveCmd = &cobra.Command{
	Use:   "remove <symbol>",
	Short: "Unfollow an asset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().RemoveFavorite(cmd.Context(), favoriteUser, args[0])
	},
}

var favoritesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a user's favorites, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ListFavorites(cmd.Context(), favoriteUser, favoritePrices)
	},
}

var favoritesPopularCmd = &cobra.Command{
	Use:   "popular",
	Short: "Rank assets by number of followers",
	RunE: func(cmd *cobra.Command, args []string) error {
		if favoriteTopSize < 0 {
			return fmt.Errorf("--limit cannot be negative")
		}
		return getApp().PopularAssets(cmd.Context(), favoriteTopSize)
	},
}

func init() {
	refreshAssetsCmd.Flags().StringVar(&refreshSymbol, "symbol", "", "Refresh a single asset instead of all")

	for _, cmd := range []*cobra.Command{favoritesAddCmd, favoritesRemoveCmd, favoritesListCmd} {
		cmd.Flags().Int64Var(&favoriteUser, "user", 1, "User id")
	}
	favoritesListCmd.Flags().BoolVar(&favoritePrices, "prices", false, "Include the newest stored price")
	favoritesPopularCmd.Flags().IntVar(&favoriteTopSize, "limit", 0, "Number of assets to rank (0 uses catalog.popular_limit)")

	favoritesCmd.AddCommand(favoritesAddCmd, favoritesRemoveCmd, favoritesListCmd, favoritesPopularCmd)
}
