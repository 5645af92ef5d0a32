package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/suite"
)

// JWTTestSuite JWT工具测试套件
type JWTTestSuite struct {
	suite.Suite
	manager *JWTManager
}

func (suite *JWTTestSuite) SetupTest() {
	suite.manager = NewJWTManager("test-secret-key", time.Hour)
}

func TestJWTSuite(t *testing.T) {
	suite.Run(t, new(JWTTestSuite))
}

// 测试签发并验证令牌
func (suite *JWTTestSuite) TestGenerateAndValidate() {
	token, err := suite.manager.GenerateToken("night-observer")
	suite.Require().NoError(err)
	suite.NotEmpty(token)

	claims, err := suite.manager.ValidateToken(token)
	suite.Require().NoError(err)
	suite.Equal("night-observer", claims.Operator)
	suite.Equal(RoleOperator, claims.Role)
	suite.Equal(TokenIssuer, claims.Issuer)
	suite.Equal("night-observer", claims.Subject)
	suite.WithinDuration(time.Now().Add(time.Hour), claims.ExpiresAt.Time, 5*time.Second)
}

// 测试空操作员名
func (suite *JWTTestSuite) TestGenerateRequiresOperator() {
	_, err := suite.manager.GenerateToken("")
	suite.Error(err)
}

// 测试无效令牌
func (suite *JWTTestSuite) TestValidateInvalidToken() {
	_, err := suite.manager.ValidateToken("not.a.token")
	suite.Error(err)

	_, err = suite.manager.ValidateToken("")
	suite.Error(err)
}

// 测试错误的密钥
func (suite *JWTTestSuite) TestValidateWrongSecret() {
	token, err := NewJWTManager("other-secret", time.Hour).GenerateToken("someone")
	suite.Require().NoError(err)

	_, err = suite.manager.ValidateToken(token)
	suite.Error(err)
}

// 测试过期令牌
func (suite *JWTTestSuite) TestValidateExpiredToken() {
	token, err := NewJWTManager("test-secret-key", -time.Minute).GenerateToken("someone")
	suite.Require().NoError(err)

	_, err = suite.manager.ValidateToken(token)
	suite.ErrorIs(err, ErrExpiredToken)
}

// 测试其他签发者的令牌
func (suite *JWTTestSuite) TestValidateWrongIssuer() {
	claims := &OperatorClaims{
		Operator: "someone",
		Role:     RoleOperator,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "other-service",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret-key"))
	suite.Require().NoError(err)

	_, err = suite.manager.ValidateToken(token)
	suite.Error(err)
}

// 测试 none 签名算法被拒绝
func (suite *JWTTestSuite) TestRejectsNoneAlgorithm() {
	claims := &OperatorClaims{Operator: "someone", RegisteredClaims: jwt.RegisteredClaims{Issuer: TokenIssuer}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	suite.Require().NoError(err)

	_, err = suite.manager.ValidateToken(token)
	suite.Error(err)
}

func (suite *JWTTestSuite) TestGetTokenExpiry() {
	suite.Equal(time.Hour, suite.manager.GetTokenExpiry())
}
