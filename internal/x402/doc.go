// Package x402 实现 HTTP 402 支付协议的消息编解码，包括支付挑战
// (Challenge)、支付凭证 (PaymentProof) 与支付回执 (Receipt) 三类报文。
// 包内只做纯粹的构造与校验，不持有任何状态；协议语义由 internal/agent
// 驱动，资源方的验证逻辑不在本仓库范围内。
package x402
