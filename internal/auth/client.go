// auth/client.go
package auth

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"filekeeper/internal/domain"
)

// GetPrincipalMethod returns the caller's principal as a google.protobuf.Struct
// with fields id, username, role, department_id and user_type.
const GetPrincipalMethod = "/auth.v1.AuthService/GetPrincipal"

// GRPCVerifier delegates token checks to the account service over gRPC.
type GRPCVerifier struct {
	conn grpc.ClientConnInterface
}

func NewGRPCVerifier(conn grpc.ClientConnInterface) *GRPCVerifier {
	return &GRPCVerifier{conn: conn}
}

func (v *GRPCVerifier) Verify(ctx context.Context, token string) (*domain.Principal, error) {
	md := metadata.New(map[string]string{
		"authorization": "Bearer " + token,
	})
	ctx = metadata.NewOutgoingContext(ctx, md)

	var out structpb.Struct
	if err := v.conn.Invoke(ctx, GetPrincipalMethod, &emptypb.Empty{}, &out); err != nil {
		switch status.Code(err) {
		case codes.Unauthenticated, codes.PermissionDenied, codes.InvalidArgument, codes.NotFound:
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return principalFromStruct(&out)
}

func principalFromStruct(s *structpb.Struct) (*domain.Principal, error) {
	f := s.GetFields()
	claims := Claims{
		UserID:   int64(f["id"].GetNumberValue()),
		Username: f["username"].GetStringValue(),
		Role:     f["role"].GetStringValue(),
		UserType: f["user_type"].GetStringValue(),
	}
	if d, ok := f["department_id"]; ok {
		if _, isNull := d.GetKind().(*structpb.Value_NullValue); !isNull {
			id := int64(d.GetNumberValue())
			claims.DepartmentID = &id
		}
	}
	return claims.principal()
}
