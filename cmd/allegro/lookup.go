package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/and161185/allegro-webapi/internal/client"
	"github.com/and161185/allegro-webapi/internal/model"
)

const lookupTimeout = 30 * time.Second

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("bad id %q", arg)
	}
	return id, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// lookup runs fn with a connected client and prints what it returns.
func (a *app) lookup(cmd *cobra.Command, arg string, fn func(ctx context.Context, c *client.Client, id int64) (any, error)) error {
	id, err := parseID(arg)
	if err != nil {
		return err
	}
	c, closeFn, err := a.connect(client.WithoutPolling())
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, cancel := context.WithTimeout(cmd.Context(), lookupTimeout)
	defer cancel()
	v, err := fn(ctx, c, id)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), v)
}

type userView struct {
	ID      int64  `json:"id"`
	Login   string `json:"login"`
	Rating  int64  `json:"rating"`
	Country int64  `json:"country"`
}

func toUserView(u *model.User) userView {
	return userView{ID: u.ID, Login: u.Login, Rating: u.Rating, Country: u.Country}
}

func newUserCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "user <id>",
		Short: "Show a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.lookup(cmd, args[0], func(ctx context.Context, c *client.Client, id int64) (any, error) {
				u, err := c.GetUser(ctx, id)
				if err != nil {
					return nil, err
				}
				return toUserView(u), nil
			})
		},
	}
}

type itemView struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Location    string     `json:"location"`
	MainImage   string     `json:"main_image,omitempty"`
	IsNew       bool       `json:"is_new"`
	IsUsed      bool       `json:"is_used"`
	SellerID    int64      `json:"seller_id"`
	BuyNowPrice float64    `json:"buy_now_price,omitempty"`
	EndingTime  *time.Time `json:"ending_time,omitempty"`
	Seller      *userView  `json:"seller,omitempty"`
}

func newItemCmd(a *app) *cobra.Command {
	var withSeller bool
	cmd := &cobra.Command{
		Use:   "item <id>",
		Short: "Show an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.lookup(cmd, args[0], func(ctx context.Context, c *client.Client, id int64) (any, error) {
				it, err := c.GetItem(ctx, id)
				if err != nil {
					return nil, err
				}
				v := itemView{
					ID:          it.ID,
					Name:        it.Name,
					Location:    it.Location,
					MainImage:   it.MainImage,
					IsNew:       it.IsNew,
					IsUsed:      it.IsUsed,
					SellerID:    it.SellerID,
					BuyNowPrice: it.BuyNowPrice,
				}
				if !it.EndingTime.IsZero() {
					v.EndingTime = &it.EndingTime
				}
				if withSeller {
					s, err := it.Seller(ctx)
					if err != nil {
						return nil, fmt.Errorf("seller: %w", err)
					}
					sv := toUserView(s)
					v.Seller = &sv
				}
				return v, nil
			})
		},
	}
	cmd.Flags().BoolVar(&withSeller, "with-seller", false, "also resolve the seller")
	return cmd
}

func newCategoryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "category <id>",
		Short: "Show a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.lookup(cmd, args[0], func(ctx context.Context, c *client.Client, id int64) (any, error) {
				cat, err := c.GetCategory(ctx, id)
				if err != nil {
					return nil, err
				}
				return struct {
					ID       int64  `json:"id"`
					Name     string `json:"name"`
					ParentID int64  `json:"parent_id,omitempty"`
				}{cat.ID, cat.Name, cat.ParentID}, nil
			})
		},
	}
}
