package model

import (
	"context"
	"time"

	"github.com/and161185/allegro-webapi/internal/errs"
	"github.com/and161185/allegro-webapi/internal/rpc"
)

// UserResolver loads a user by id. The client facade implements it.
type UserResolver interface {
	GetUser(ctx context.Context, id int64) (*User, error)
}

// itIsNewUsed values.
const (
	conditionNew  = 1
	conditionUsed = 2
)

// image types in itemImgList, small to large.
const imageTypeLarge = 3

// Item is a read-only view of doShowItemInfoExt.
type Item struct {
	ID          int64
	Name        string
	Location    string
	MainImage   string
	IsNew       bool
	IsUsed      bool
	SellerID    int64
	BuyNowPrice float64
	EndingTime  time.Time

	users UserResolver
}

// NewItem maps a doShowItemInfoExt response. users resolves the seller lazily
// and must not be nil.
func NewItem(raw rpc.Result, users UserResolver) (*Item, error) {
	if users == nil {
		return nil, errs.ErrClientRequired
	}
	info := raw.Map("itemListInfoExt")
	it := &Item{
		ID:          info.Int64("itId"),
		Name:        info.String("itName"),
		Location:    info.String("itLocation"),
		MainImage:   mainImage(raw.Items("itemImgList")),
		SellerID:    info.Int64("itSellerId"),
		BuyNowPrice: info.Float64("itBuyNowPrice"),
		users:       users,
	}
	switch info.Int64("itIsNewUsed") {
	case conditionNew:
		it.IsNew = true
	case conditionUsed:
		it.IsUsed = true
	}
	if end := info.Int64("itEndingTime"); end > 0 {
		it.EndingTime = time.Unix(end, 0).UTC()
	}
	return it, nil
}

// mainImage prefers the large image, falling back to the last listed one.
func mainImage(imgs []rpc.Result) string {
	var url string
	for _, img := range imgs {
		u := img.String("imageUrl")
		if u == "" {
			continue
		}
		if img.Int64("imageType") == imageTypeLarge {
			return u
		}
		url = u
	}
	return url
}

// Seller resolves the item's seller through the client.
func (it *Item) Seller(ctx context.Context) (*User, error) {
	return it.users.GetUser(ctx, it.SellerID)
}
