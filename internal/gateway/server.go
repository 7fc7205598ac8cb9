// Package gateway is a development WebAPI endpoint. It serves the WebAPI
// operations over gRPC with google.protobuf.Struct payloads, backed by YAML
// fixtures, so the client can be exercised end to end without the real
// marketplace.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/allegro-webapi/internal/errs"
	"github.com/and161185/allegro-webapi/internal/rpc"
)

// journal infoType values.
const (
	infoTypeAll     = 0
	infoTypeSelling = 1 // entries for the caller's own items
)

type opHandler func(s *Server, ctx context.Context, req rpc.Result) (map[string]any, error)

type operation struct {
	name       string
	privileged bool
	handle     opHandler
}

var operations = []operation{
	{rpc.OpQuerySysStatus, false, (*Server).querySysStatus},
	{rpc.OpLoginEnc, false, (*Server).loginEnc},
	{rpc.OpShowUser, true, (*Server).showUser},
	{rpc.OpShowItemInfoExt, true, (*Server).showItemInfoExt},
	{rpc.OpGetCategoryPath, true, (*Server).getCategoryPath},
	{rpc.OpGetSiteJournal, true, (*Server).getSiteJournal},
}

// Server answers WebAPI operations from a Catalog.
type Server struct {
	auth   *Auth
	cat    *Catalog
	status StatusFixture
	log    *zap.Logger
}

// New constructs a gateway server.
func New(auth *Auth, cat *Catalog, st StatusFixture, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{auth: auth, cat: cat, status: st, log: log}
}

// Catalog exposes the backing catalog, e.g. to record journal entries.
func (s *Server) Catalog() *Catalog { return s.cat }

// Register adds the WebAPI service to r.
func (s *Server) Register(r grpc.ServiceRegistrar) {
	r.RegisterService(serviceDesc(), s)
}

type webAPIServer interface {
	dispatch(ctx context.Context, op operation, req *structpb.Struct) (*structpb.Struct, error)
}

func serviceDesc() *grpc.ServiceDesc {
	sd := &grpc.ServiceDesc{
		ServiceName: rpc.ServiceName,
		HandlerType: (*webAPIServer)(nil),
		Streams:     []grpc.StreamDesc{},
		Metadata:    "allegro/webapi/v1/webapi.proto",
	}
	for _, op := range operations {
		sd.Methods = append(sd.Methods, grpc.MethodDesc{
			MethodName: op.name,
			Handler:    methodHandler(op),
		})
	}
	return sd
}

func methodHandler(op operation) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		h := func(ctx context.Context, req any) (any, error) {
			return srv.(webAPIServer).dispatch(ctx, op, req.(*structpb.Struct))
		}
		if interceptor == nil {
			return h(ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: rpc.FullMethod(op.name)}
		return interceptor(ctx, in, info, h)
	}
}

func (s *Server) dispatch(ctx context.Context, op operation, in *structpb.Struct) (*structpb.Struct, error) {
	req := rpc.Result(in.AsMap())
	if op.privileged {
		uid, err := s.auth.Verify(req.String(rpc.SessionKey(op.name)))
		if err != nil {
			return nil, toStatus(err)
		}
		ctx = WithUserID(ctx, uid)
	}
	out, err := op.handle(s, ctx, req)
	if err != nil {
		return nil, toStatus(err)
	}
	resp, err := structpb.NewStruct(out)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode %s: %v", op.name, err)
	}
	return resp, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, errs.ErrUnauthorized):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, errs.ErrRateLimited):
		return status.Error(codes.ResourceExhausted, "rate limited")
	case errors.Is(err, errs.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, errs.ErrVersionMismatch):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, errs.ErrConfiguration):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Errorf(codes.Internal, "%v", err)
	}
}

// --- Setup ---

func (s *Server) querySysStatus(_ context.Context, req rpc.Result) (map[string]any, error) {
	if err := s.auth.CheckKey(req.String("webapiKey")); err != nil {
		return nil, err
	}
	return map[string]any{"verKey": s.status.VerKey, "info": s.status.Info}, nil
}

func (s *Server) loginEnc(ctx context.Context, req rpc.Result) (map[string]any, error) {
	if err := s.auth.CheckKey(req.String("webapiKey")); err != nil {
		return nil, err
	}
	if v := req.Int64("localVersion"); v != s.status.VerKey {
		return nil, fmt.Errorf("%w: got %d, current %d", errs.ErrVersionMismatch, v, s.status.VerKey)
	}
	login, hash := req.String("userLogin"), req.String("userHashPassword")
	if login == "" || hash == "" {
		return nil, fmt.Errorf("%w: userLogin and userHashPassword required", errs.ErrConfiguration)
	}
	handle, uid, err := s.auth.Login(ctx, login, hash, int(req.Int64("countryCode")), peerAddr(ctx))
	if err != nil {
		return nil, err
	}
	return map[string]any{"sessionHandlePart": handle, "userId": uid}, nil
}

// --- Lookups ---

func (s *Server) showUser(ctx context.Context, req rpc.Result) (map[string]any, error) {
	id := req.Int64("userId")
	if id == 0 {
		id, _ = UserIDFromCtx(ctx)
	}
	u, err := s.cat.User(id)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"userId":      u.ID,
		"userLogin":   u.Login,
		"userRating":  u.Rating,
		"userCountry": u.Country,
	}, nil
}

func (s *Server) showItemInfoExt(_ context.Context, req rpc.Result) (map[string]any, error) {
	it, err := s.cat.Item(req.Int64("itemId"))
	if err != nil {
		return nil, err
	}
	info := map[string]any{
		"itId":          it.ID,
		"itName":        it.Name,
		"itLocation":    it.Location,
		"itIsNewUsed":   int64(it.Condition),
		"itSellerId":    it.SellerID,
		"itBuyNowPrice": it.BuyNowPrice,
	}
	if !it.EndingTime.IsZero() {
		info["itEndingTime"] = it.EndingTime.Unix()
	}
	out := map[string]any{"itemListInfoExt": info}
	if req.Int64("getImageUrl") == 1 {
		imgs := make([]any, 0, len(it.Images))
		for _, img := range it.Images {
			imgs = append(imgs, map[string]any{"imageType": int64(img.Type), "imageUrl": img.URL})
		}
		out["itemImgList"] = wrapItems(imgs)
	}
	return out, nil
}

func (s *Server) getCategoryPath(_ context.Context, req rpc.Result) (map[string]any, error) {
	path, err := s.cat.CategoryPath(req.Int64("categoryId"))
	if err != nil {
		return nil, err
	}
	items := make([]any, 0, len(path))
	for _, c := range path {
		items = append(items, map[string]any{"catId": c.ID, "catName": c.Name, "catParent": c.Parent})
	}
	return map[string]any{"categoryPath": wrapItems(items)}, nil
}

// --- Journal ---

func (s *Server) getSiteJournal(ctx context.Context, req rpc.Result) (map[string]any, error) {
	var keep func(JournalRow) bool
	switch req.Int64("infoType") {
	case infoTypeAll:
	case infoTypeSelling:
		uid, _ := UserIDFromCtx(ctx)
		keep = func(r JournalRow) bool {
			it, err := s.cat.Item(r.ItemID)
			return err == nil && it.SellerID == uid
		}
	default:
		return nil, fmt.Errorf("%w: unknown infoType %d", errs.ErrConfiguration, req.Int64("infoType"))
	}

	rows := s.cat.JournalSince(req.Int64("startingPoint"), keep)
	items := make([]any, 0, len(rows))
	for _, r := range rows {
		items = append(items, map[string]any{
			"rowId":      r.RowID,
			"itemId":     r.ItemID,
			"changeType": r.ChangeType,
			"changeDate": r.At.Unix(),
		})
	}
	return map[string]any{"siteJournalArray": wrapItems(items)}, nil
}

// wrapItems produces the WebAPI array shape [{item: [...]}].
func wrapItems(items []any) []any {
	return []any{map[string]any{"item": items}}
}
